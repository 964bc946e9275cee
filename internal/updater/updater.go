// Package updater runs one synchronization pass of a local asset tree against
// its remote.
package updater

import (
	"bytes"
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"
	"github.com/openmined/assetsync/internal/archive"
	"github.com/openmined/assetsync/internal/diff"
	"github.com/openmined/assetsync/internal/download"
	"github.com/openmined/assetsync/internal/local"
	"github.com/openmined/assetsync/internal/progress"
	"github.com/openmined/assetsync/internal/remote"
	"github.com/openmined/assetsync/internal/transform"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/openmined/assetsync/internal/version"
)

var (
	ErrNoBaseURL = errors.New("updater: base url missing")
	ErrNoDir     = errors.New("updater: directory missing")
)

type Options struct {
	BaseURL string
	Dir     string

	// FilesPath is the directory under BaseURL serving file content.
	FilesPath string
	// BootstrapArchive, when set, is a zip under BaseURL unpacked into an
	// empty tree before diffing.
	BootstrapArchive string
	Workers          int

	// Protector brings files into their at-rest form when the remote
	// declares encryption.
	Protector  transform.Transform
	Receiver   progress.Receiver
	HTTPClient *req.Client
	Matcher    version.Matcher
}

// Result describes a finished pass.
type Result struct {
	SessionID    string
	UpToDate     bool
	Bootstrapped bool
	Changes      *diff.Changes
	Summary      download.Summary
	// Verified is true when the tree matches the remote fingerprint after
	// the pass.
	Verified bool
}

type Updater struct {
	opts     Options
	client   *req.Client
	receiver progress.Receiver
	remote   *remote.Client
	local    *local.Metadata
}

func New(opts Options) (*Updater, error) {
	if opts.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if opts.Dir == "" {
		return nil, ErrNoDir
	}

	client := opts.HTTPClient
	if client == nil {
		client = download.NewHTTPClient()
	}
	receiver := progress.OrNop(opts.Receiver)

	remoteOpts := []remote.Option{remote.WithReceiver(receiver)}
	if opts.Matcher != nil {
		remoteOpts = append(remoteOpts, remote.WithMatcher(opts.Matcher))
	}
	if opts.FilesPath != "" {
		remoteOpts = append(remoteOpts, remote.WithFilesPath(opts.FilesPath))
	}

	return &Updater{
		opts:     opts,
		client:   client,
		receiver: receiver,
		remote:   remote.NewClient(opts.BaseURL, client, remoteOpts...),
		local:    local.New(opts.Dir),
	}, nil
}

// Run performs one pass: probe, scan, fetch, diff, apply, verify.
func (u *Updater) Run(ctx context.Context) (*Result, error) {
	res := &Result{SessionID: uuid.NewString()}
	log := slog.With("session", res.SessionID)
	tStart := time.Now()

	u.receiver.SetInfo("Checking for updates", u.remote.BaseURL())
	probe, err := u.remote.FetchDirChecksum(ctx)
	if err != nil {
		return nil, fmt.Errorf("updater: probe: %w", err)
	}

	t := transform.Select(probe.Encrypt, u.opts.Protector)
	if err := u.scan(ctx, t); err != nil {
		return nil, err
	}

	localSum := u.local.DirChecksum()
	if bytes.Equal(localSum, probe.Digest) {
		log.Info("assets up to date", "checksum", hex.EncodeToString(localSum), "tsTotal", time.Since(tStart))
		u.receiver.SetInfo("Up to date", "")
		res.UpToDate = true
		res.Verified = true
		return res, nil
	}
	log.Info("assets outdated",
		"local", hex.EncodeToString(localSum),
		"remote", hex.EncodeToString(probe.Digest),
	)

	u.receiver.SetInfo("Fetching metadata", "")
	meta, err := u.remote.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("updater: metadata: %w", err)
	}

	// a bare checksum probe does not carry the encrypt flag
	if meta.Encrypt != probe.Encrypt {
		t = transform.Select(meta.Encrypt, u.opts.Protector)
		if err := u.scan(ctx, t); err != nil {
			return nil, err
		}
	}

	if len(u.local.Files) == 0 && u.opts.BootstrapArchive != "" {
		if err := u.bootstrap(ctx); err != nil {
			return nil, err
		}
		res.Bootstrapped = true
		if err := u.scan(ctx, t); err != nil {
			return nil, err
		}
	}

	res.Changes = diff.Compute(u.local.Snapshot(), meta.Snapshot())
	log.Info("changes",
		"dirsCreate", len(res.Changes.DirsToCreate),
		"dirsDelete", len(res.Changes.DirsToDelete),
		"filesCreate", len(res.Changes.FilesToCreate),
		"filesUpdate", len(res.Changes.FilesToUpdate),
		"filesDelete", len(res.Changes.FilesToDelete),
	)

	summary, err := u.apply(ctx, meta, res.Changes)
	res.Summary = summary
	if err != nil {
		return res, err
	}

	if err := u.scan(ctx, t); err != nil {
		return res, err
	}
	res.Verified = bytes.Equal(u.local.DirChecksum(), probe.Digest)
	if !res.Verified {
		log.Warn("tree does not match remote checksum after update",
			"local", hex.EncodeToString(u.local.DirChecksum()),
			"remote", hex.EncodeToString(probe.Digest),
		)
	}

	log.Info("update done", "changes", res.Changes.Count(), "verified", res.Verified, "tsTotal", time.Since(tStart))
	return res, nil
}

func (u *Updater) scan(ctx context.Context, t transform.Transform) error {
	u.receiver.SetInfo("Scanning local files", u.opts.Dir)
	if err := u.local.ScanDir(ctx, t); err != nil {
		return fmt.Errorf("updater: scan: %w", err)
	}
	return nil
}

// apply creates before it deletes: dirs, downloads, stale files, then stale
// dirs deepest first.
func (u *Updater) apply(ctx context.Context, meta *remote.Metadata, changes *diff.Changes) (download.Summary, error) {
	var summary download.Summary

	for _, dir := range changes.DirsToCreate {
		path, err := utils.SafeJoin(u.opts.Dir, dir)
		if err != nil {
			return summary, fmt.Errorf("updater: %w", err)
		}
		if err := utils.EnsureDir(path); err != nil {
			return summary, fmt.Errorf("updater: %w", err)
		}
	}

	if fetches := changes.Fetches(); len(fetches) > 0 {
		d := download.NewDispatcher(u.client, u.receiver, u.opts.Workers)
		tasks := make([]*download.Task, 0, len(fetches))
		for _, rel := range fetches {
			path, err := utils.SafeJoin(u.opts.Dir, rel)
			if err != nil {
				return summary, fmt.Errorf("updater: %w", err)
			}
			tasks = append(tasks, d.NewTask(u.remote.FileURL(rel), path, meta.Files[rel].Size))
		}

		u.receiver.SetInfo("Downloading", fmt.Sprintf("%d files", len(tasks)))
		d.Begin()
		err := d.Download(ctx, tasks)
		summary = d.End()
		if err != nil {
			return summary, fmt.Errorf("updater: download: %w", err)
		}
	}

	for _, rel := range changes.FilesToDelete {
		path, err := utils.SafeJoin(u.opts.Dir, rel)
		if err != nil {
			return summary, fmt.Errorf("updater: %w", err)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return summary, fmt.Errorf("updater: %w", err)
		}
	}

	for _, dir := range deepestFirst(changes.DirsToDelete) {
		path, err := utils.SafeJoin(u.opts.Dir, dir)
		if err != nil {
			return summary, fmt.Errorf("updater: %w", err)
		}
		if err := utils.RemoveIfExists(path); err != nil {
			return summary, fmt.Errorf("updater: %w", err)
		}
	}

	return summary, nil
}

func (u *Updater) bootstrap(ctx context.Context) error {
	tmp, err := os.CreateTemp("", "assetsync-bootstrap-*.zip")
	if err != nil {
		return fmt.Errorf("updater: bootstrap: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	u.receiver.SetInfo("Downloading bootstrap archive", u.opts.BootstrapArchive)
	d := download.NewDispatcher(u.client, u.receiver, 1)
	d.Begin()
	err = d.Download(ctx, []*download.Task{d.NewTask(u.remote.URL(u.opts.BootstrapArchive), tmpPath, 0)})
	d.End()
	if err != nil {
		return fmt.Errorf("updater: bootstrap: %w", err)
	}

	u.receiver.SetInfo("Extracting bootstrap archive", u.opts.BootstrapArchive)
	if err := archive.ExtractZip(tmpPath, u.opts.Dir, u.receiver); err != nil {
		return fmt.Errorf("updater: bootstrap: %w", err)
	}
	slog.Info("bootstrap archive extracted", "archive", u.opts.BootstrapArchive)
	return nil
}

func deepestFirst(dirs []string) []string {
	sorted := slices.Clone(dirs)
	slices.SortFunc(sorted, func(a, b string) int {
		if c := cmp.Compare(strings.Count(b, "/"), strings.Count(a, "/")); c != 0 {
			return c
		}
		return strings.Compare(b, a)
	})
	return sorted
}
