package version

import (
	"log/slog"

	"github.com/Masterminds/semver/v3"
)

// Matcher decides whether the running client satisfies a version range
// published by the server.
type Matcher interface {
	Matches(rangeSpec string) bool
}

// SemverMatcher matches a fixed client version against semver constraints
// such as ">=0.3.0, <0.4.0" or "^0.3".
type SemverMatcher struct {
	Version string
}

// NewMatcher returns a matcher for the running build.
func NewMatcher() *SemverMatcher {
	return &SemverMatcher{Version: Version}
}

func (m *SemverMatcher) String() string {
	return m.Version
}

// Matches returns false when either the constraint or the client version
// cannot be parsed.
func (m *SemverMatcher) Matches(rangeSpec string) bool {
	constraint, err := semver.NewConstraint(rangeSpec)
	if err != nil {
		slog.Warn("invalid client version range", "range", rangeSpec, "error", err)
		return false
	}

	v, err := semver.NewVersion(m.Version)
	if err != nil {
		slog.Warn("invalid client version", "version", m.Version, "error", err)
		return false
	}

	return constraint.Check(v)
}

var _ Matcher = (*SemverMatcher)(nil)
