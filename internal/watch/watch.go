// Package watch periodically recomputes the fill of a project's positions
// and raises a desktop notification when a position becomes too empty.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/christopherklint97/allocr/internal/assign"
	"github.com/christopherklint97/allocr/internal/config"
	"github.com/christopherklint97/allocr/internal/fill"
	"github.com/christopherklint97/allocr/internal/staffing"
)

// Retrier resubmits submissions that failed in transport.
type Retrier interface {
	RetryFailed(ctx context.Context) (assign.RetryResult, error)
}

// StateStore persists small values between runs.
type StateStore interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// Report is the fill of one position at one check.
type Report struct {
	Position staffing.Position
	Ratios   fill.Ratios
	// Over is set when either unfilled ratio reaches the threshold.
	Over bool
	// New is set when the position crossed the threshold since the last check.
	New bool
}

type Watcher struct {
	source    staffing.Source
	calc      fill.Calculator
	projectID int64
	retrier   Retrier
	state     StateStore
	logger    *slog.Logger

	Threshold int
	Interval  time.Duration
	Notify    bool
	Out       io.Writer

	notify func(title, message string) error
	now    func() time.Time
}

func New(source staffing.Source, calc fill.Calculator, projectID int64, retrier Retrier, state StateStore, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if calc == nil {
		calc = fill.OccupantSum{}
	}
	return &Watcher{
		source:    source,
		calc:      calc,
		projectID: projectID,
		retrier:   retrier,
		state:     state,
		logger:    logger,
		Threshold: 50,
		Interval:  time.Hour,
		Notify:    true,
		Out:       os.Stdout,
		notify:    SendNotification,
		now:       time.Now,
	}
}

// Run checks the project once, then again at every interval boundary,
// until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := writePID(); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePID()

	// Retry submissions that failed in earlier runs
	if w.retrier != nil {
		res, err := w.retrier.RetryFailed(ctx)
		if err != nil {
			w.logger.Error("retrying failed submissions", "error", err)
		} else if res.Attempted > 0 {
			fmt.Fprintf(w.Out, "Retried %d failed submissions: %d submitted, %d rejected, %d still failing\n",
				res.Attempted, res.Submitted, res.Rejected, res.Failed)
		}
	}

	fmt.Fprintf(w.Out, "Watching project %d (interval: %s, threshold: %d%%)\n", w.projectID, w.Interval, w.Threshold)

	for {
		if _, err := w.Check(ctx); err != nil {
			fmt.Fprintf(w.Out, "Error checking project: %v\n", err)
		}

		next := nextAlignedTick(w.now(), w.Interval)
		fmt.Fprintf(w.Out, "Next check at %s\n", next.Format("15:04"))

		select {
		case <-ctx.Done():
			fmt.Fprintln(w.Out, "\nWatch stopped.")
			return nil
		case <-time.After(time.Until(next)):
		}
	}
}

// Check recomputes the fill of every position of the project and notifies
// about positions that newly crossed the threshold.
func (w *Watcher) Check(ctx context.Context) ([]Report, error) {
	staffed, err := w.source.ProjectPositions(ctx, w.projectID)
	if err != nil {
		return nil, fmt.Errorf("fetching project positions: %w", err)
	}

	previous := w.alerted()
	var current []int64
	reports := make([]Report, 0, len(staffed))

	for _, sp := range staffed {
		r := w.calc.Compute(sp.Position, sp.Allocations).Clamped()
		rep := Report{
			Position: sp.Position,
			Ratios:   r,
			Over:     r.PositionUnfilled >= w.Threshold || r.UtilizationUnfilled >= w.Threshold,
		}
		if rep.Over {
			current = append(current, sp.Position.ID)
			rep.New = !slices.Contains(previous, sp.Position.ID)
		}
		reports = append(reports, rep)

		w.logger.Debug("position fill",
			"position", sp.Position.ID,
			"unfilled_days", r.PositionUnfilled,
			"unfilled_utilization", r.UtilizationUnfilled,
		)
		fmt.Fprintf(w.Out, "  %-40s %3d%% days unfilled, %3d%% utilization unfilled\n",
			positionLabel(sp.Position), r.PositionUnfilled, r.UtilizationUnfilled)
	}

	for _, rep := range reports {
		if !rep.New {
			continue
		}
		w.logger.Info("position under-filled", "position", rep.Position.ID, "threshold", w.Threshold)
		if w.Notify {
			msg := fmt.Sprintf("%s is %d%% unfilled", positionLabel(rep.Position),
				max(rep.Ratios.PositionUnfilled, rep.Ratios.UtilizationUnfilled))
			if err := w.notify("allocr", msg); err != nil {
				w.logger.Error("sending notification", "error", err)
			}
		}
	}

	w.save(current)
	return reports, nil
}

func positionLabel(p staffing.Position) string {
	if p.ProjectName == "" {
		return fmt.Sprintf("%s (#%d)", p.RoleName, p.ID)
	}
	return fmt.Sprintf("%s: %s (#%d)", p.ProjectName, p.RoleName, p.ID)
}

func (w *Watcher) stateKey(name string) string {
	return fmt.Sprintf("watch.%d.%s", w.projectID, name)
}

func (w *Watcher) alerted() []int64 {
	if w.state == nil {
		return nil
	}
	raw, err := w.state.GetState(w.stateKey("alerted"))
	if err != nil {
		w.logger.Error("reading watch state", "error", err)
		return nil
	}
	var ids []int64
	for _, f := range strings.Split(raw, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (w *Watcher) save(ids []int64) {
	if w.state == nil {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	if err := w.state.SetState(w.stateKey("alerted"), strings.Join(parts, ",")); err != nil {
		w.logger.Error("saving watch state", "error", err)
	}
	if err := w.state.SetState(w.stateKey("last_check"), w.now().UTC().Format(time.RFC3339)); err != nil {
		w.logger.Error("saving watch state", "error", err)
	}
}

// nextAlignedTick returns the next wall-clock boundary of interval counted
// from the top of the current hour.
func nextAlignedTick(now time.Time, interval time.Duration) time.Time {
	mins := int(interval.Minutes())
	if mins <= 0 {
		mins = 60
	}

	nextMinute := ((now.Minute() / mins) + 1) * mins

	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return next.Add(time.Duration(nextMinute) * time.Minute)
}

func pidPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "allocr.pid"), nil
}

func writePID() error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	path, err := pidPath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePID() {
	if path, err := pidPath(); err == nil {
		os.Remove(path)
	}
}

// ReadPID returns the process id of a running watcher.
func ReadPID() (int, error) {
	path, err := pidPath()
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("no running watcher found")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file")
	}

	return pid, nil
}
