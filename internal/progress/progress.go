// Package progress tracks a classification run: per-image timing, category
// tallies, and the end-of-run report. On a terminal it draws a progress bar;
// elsewhere it logs a line every few images.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"taxosort/internal/discovery"
	"taxosort/internal/logging"
)

// Options configures a Run.
type Options struct {
	// Writer receives the progress bar. A bar is drawn only when Writer is a
	// terminal; defaults to os.Stderr.
	Writer io.Writer
	// DisableBar forces log-line progress even on a terminal.
	DisableBar bool
	// LogEvery logs a progress line every N images when no bar is drawn.
	// A line is also logged each time another tenth of the run completes.
	LogEvery int
	Logger   *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
	// Started is when the run began; defaults to Now() at NewRun. Set it to
	// include startup work such as discovery in the elapsed time.
	Started time.Time
}

// Run is the explicit context of one pass over the remaining images.
type Run struct {
	remaining   int
	alreadyDone int
	processed   int
	categories  map[string]int

	started   time.Time
	itemStart time.Time
	last      time.Duration

	now      func() time.Time
	logEvery int
	sampler  *logging.ProgressSampler
	logger   *slog.Logger
	bar      *progressbar.ProgressBar
}

// NewRun starts timing a run over remaining images, alreadyDone of which were
// completed by earlier runs.
func NewRun(remaining, alreadyDone int, opts Options) *Run {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	logEvery := opts.LogEvery
	if logEvery <= 0 {
		logEvery = 100
	}
	started := opts.Started
	if started.IsZero() {
		started = now()
	}
	r := &Run{
		remaining:   remaining,
		alreadyDone: alreadyDone,
		categories:  make(map[string]int),
		started:     started,
		now:         now,
		logEvery:    logEvery,
		sampler:     logging.NewProgressSampler(10),
		logger:      logging.NewComponentLogger(opts.Logger, "progress"),
	}
	if !opts.DisableBar && remaining > 0 && isTerminal(w) {
		r.bar = progressbar.NewOptions(remaining,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Classifying"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("img"),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
	}
	return r
}

// Begin marks the start of work on item.
func (r *Run) Begin(item discovery.Item) {
	r.itemStart = r.now()
}

// Done records that item was classified into category and returns how long
// it took.
func (r *Run) Done(item discovery.Item, category string) time.Duration {
	elapsed := r.now().Sub(r.itemStart)
	r.last = elapsed
	r.processed++
	r.categories[category]++

	if r.bar != nil {
		r.bar.Describe(fmt.Sprintf("Classifying (last %.2fs)", elapsed.Seconds()))
		_ = r.bar.Add(1)
		return elapsed
	}
	sampled := r.sampler.ShouldLog(r.processed, r.remaining)
	if sampled || r.processed%r.logEvery == 0 {
		r.logger.Info("classification progress",
			logging.Int("processed", r.processed),
			logging.Int("remaining", r.remaining-r.processed),
			logging.String(logging.FieldItem, item.Name()),
			logging.Duration("last", elapsed),
		)
	}
	return elapsed
}

// Last returns the duration of the most recent image.
func (r *Run) Last() time.Duration { return r.last }

// Finish stops the progress bar.
func (r *Run) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// Summary is the end-of-run report.
type Summary struct {
	// Processed counts images classified by this run.
	Processed int
	// AlreadyDone counts images found in the ledger at start.
	AlreadyDone int
	// Total is Processed plus AlreadyDone.
	Total   int
	Elapsed time.Duration
	// Average is Elapsed spread over Total, matching the historic report.
	Average time.Duration
	// PerImage is Elapsed spread over the images this run classified.
	PerImage   time.Duration
	Categories map[string]int
}

// Summary snapshots the run.
func (r *Run) Summary() Summary {
	elapsed := r.now().Sub(r.started)
	total := r.processed + r.alreadyDone
	s := Summary{
		Processed:   r.processed,
		AlreadyDone: r.alreadyDone,
		Total:       total,
		Elapsed:     elapsed,
		Average:     elapsed / time.Duration(max(total, 1)),
		Categories:  maps.Clone(r.categories),
	}
	if r.processed > 0 {
		s.PerImage = elapsed / time.Duration(r.processed)
	}
	return s
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
