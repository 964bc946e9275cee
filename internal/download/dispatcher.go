package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"
	"github.com/openmined/assetsync/internal/progress"
	"github.com/openmined/assetsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

// Dispatcher runs a download session: it owns the aggregate byte counter all
// of its tasks report into.
type Dispatcher struct {
	client   *req.Client
	receiver progress.Receiver
	workers  int

	downloaded atomic.Int64
	expected   atomic.Int64
	started    time.Time
}

func NewDispatcher(client *req.Client, receiver progress.Receiver, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		client:   client,
		receiver: progress.OrNop(receiver),
		workers:  workers,
	}
}

// NewTask creates a task reporting into this session.
func (d *Dispatcher) NewTask(url, fileName string, expectedSize int64) *Task {
	return NewTask(d.client, d, url, fileName, expectedSize)
}

// Begin starts the session clock and clears the aggregate counter.
func (d *Dispatcher) Begin() {
	d.started = time.Now()
	d.downloaded.Store(0)
	d.expected.Store(0)
}

// AddBytes implements ByteCounter.
func (d *Dispatcher) AddBytes(delta int64) {
	done := d.downloaded.Add(delta)

	expected := d.expected.Load()
	if expected <= 0 {
		return
	}
	fraction := min(float64(done)/float64(expected), 1)
	d.receiver.SetProgress(fraction, 0)
	d.receiver.SetInfo(
		fmt.Sprintf("%.2f%%", fraction*100),
		fmt.Sprintf(": %5d KiB / %5d KiB; %5d KiB/s", done/1024, expected/1024, d.speed(done)),
	)
}

// Download runs tasks concurrently, at most workers at a time. Each task
// writes to a temporary file next to its destination that is renamed into
// place on success. The first failure cancels the remaining tasks and is
// returned; failed tasks have FailedAttempts incremented and are not retried.
func (d *Dispatcher) Download(ctx context.Context, tasks []*Task) error {
	for _, t := range tasks {
		d.expected.Add(t.ExpectedSize)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := d.runToFile(gctx, t); err != nil {
				t.FailedAttempts++
				slog.Warn("download failed", "url", t.URL, "attempts", t.FailedAttempts, "error", err)
				return err
			}
			slog.Debug("downloaded", "url", t.URL, "size", t.TotalBytes())
			return nil
		})
	}

	return g.Wait()
}

func (d *Dispatcher) runToFile(ctx context.Context, t *Task) error {
	if err := utils.EnsureParent(t.FileName); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.FileName), "."+filepath.Base(t.FileName)+".*.part")
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	tmpPath := tmp.Name()

	runErr := t.Run(ctx, tmp)
	closeErr := tmp.Close()
	if runErr == nil && closeErr != nil {
		runErr = fmt.Errorf("download: %w", closeErr)
	}
	if runErr != nil {
		os.Remove(tmpPath)
		return runErr
	}

	if err := os.Rename(tmpPath, t.FileName); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

// End closes the session and reports its summary.
func (d *Dispatcher) End() Summary {
	s := Summary{
		Bytes:   d.downloaded.Load(),
		Elapsed: time.Since(d.started),
	}
	d.receiver.SetInfo("", s.String())
	slog.Info("download session", "bytes", s.Bytes, "elapsed", s.Elapsed)
	return s
}

func (d *Dispatcher) speed(done int64) int64 {
	secs := int64(time.Since(d.started) / time.Second)
	if secs <= 0 {
		return 0
	}
	return done / secs / 1024
}

// Summary describes a finished download session.
type Summary struct {
	Bytes   int64
	Elapsed time.Duration
}

// String renders e.g. "3.0 MiB in 01:05, average speed 47 KiB/s".
func (s Summary) String() string {
	bytes := max(s.Bytes, 0)
	secs := int64(s.Elapsed / time.Second)
	var speed int64
	if secs > 0 {
		speed = bytes / secs / 1024
	}
	return fmt.Sprintf("%s in %02d:%02d, average speed %d KiB/s",
		humanize.IBytes(uint64(bytes)), secs/60, secs%60, speed)
}

var _ ByteCounter = (*Dispatcher)(nil)
