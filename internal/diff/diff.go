// Package diff compares a local and a remote tree snapshot.
package diff

import (
	"bytes"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Snapshot is the comparable shape of a tree: directory paths and file
// digests keyed by forward-slash relative path.
type Snapshot struct {
	Dirs  []string
	Files map[string][]byte
}

// Changes lists what must happen locally to match the remote snapshot. The
// lists are sorted but carry no execution order; callers apply creates before
// deletes.
type Changes struct {
	DirsToCreate  []string
	DirsToDelete  []string
	FilesToCreate []string
	FilesToUpdate []string
	FilesToDelete []string
}

// Compute is a pure function of its two inputs.
func Compute(local, remote Snapshot) *Changes {
	localDirs := mapset.NewThreadUnsafeSet(local.Dirs...)
	remoteDirs := mapset.NewThreadUnsafeSet(remote.Dirs...)
	localFiles := keySet(local.Files)
	remoteFiles := keySet(remote.Files)

	var updates []string
	for path := range localFiles.Intersect(remoteFiles).Iter() {
		if !bytes.Equal(local.Files[path], remote.Files[path]) {
			updates = append(updates, path)
		}
	}
	slices.Sort(updates)

	return &Changes{
		DirsToCreate:  sorted(remoteDirs.Difference(localDirs)),
		DirsToDelete:  sorted(localDirs.Difference(remoteDirs)),
		FilesToCreate: sorted(remoteFiles.Difference(localFiles)),
		FilesToUpdate: updates,
		FilesToDelete: sorted(localFiles.Difference(remoteFiles)),
	}
}

// Empty reports whether the two snapshots were identical.
func (c *Changes) Empty() bool {
	return c.Count() == 0
}

// Count is the total number of operations.
func (c *Changes) Count() int {
	return len(c.DirsToCreate) + len(c.DirsToDelete) +
		len(c.FilesToCreate) + len(c.FilesToUpdate) + len(c.FilesToDelete)
}

// Fetches returns the files to download: creates followed by updates.
func (c *Changes) Fetches() []string {
	out := make([]string, 0, len(c.FilesToCreate)+len(c.FilesToUpdate))
	out = append(out, c.FilesToCreate...)
	return append(out, c.FilesToUpdate...)
}

func keySet(m map[string][]byte) mapset.Set[string] {
	s := mapset.NewThreadUnsafeSetWithSize[string](len(m))
	for k := range m {
		s.Add(k)
	}
	return s
}

func sorted(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}
