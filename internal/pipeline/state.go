package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"digest_bot/internal/model"
	"digest_bot/internal/storage"
)

// State is a step of an orchestrator run.
type State string

// Run states.
const (
	StateFetching     State = "fetching"
	StateFiltering    State = "filtering"
	StateProvisioning State = "provisioning"
	StateSummarizing  State = "summarizing"
	StatePosting      State = "posting"
	StateRecording    State = "recording"
	StateDone         State = "done"
	StateAborted      State = "aborted"
)

// Report is the outcome of one run.
type Report struct {
	RunID      string
	Source     string
	StartedAt  time.Time
	EndedAt    time.Time
	State      State
	Err        error
	Fetched    int
	Filtered   int
	Summarized int
	Posted     int
	Recorded   int
	Failed     int
	// Orphans maps a group key to delivered item ids missing from the group's live listing.
	Orphans map[string][]string
}

// Run converts the report into a run log entry.
func (r *Report) Run() model.Run {
	run := model.Run{
		ID:         r.RunID,
		Source:     r.Source,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		Outcome:    model.OutcomeDone,
		Fetched:    r.Fetched,
		Summarized: r.Summarized,
		Posted:     r.Posted,
		Failed:     r.Failed,
	}
	if r.State == StateAborted {
		run.Outcome = model.OutcomeAborted
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// tracker carries the per-run identity, current state and counters.
type tracker struct {
	log    *slog.Logger
	state  State
	report Report
	now    func() time.Time
}

func newTracker(source string, log *slog.Logger, now func() time.Time) *tracker {
	id := uuid.NewString()
	return &tracker{
		log: log.With("source", source, "run_id", id),
		report: Report{
			RunID:     id,
			Source:    source,
			StartedAt: now().UTC(),
		},
		now: now,
	}
}

func (t *tracker) enter(s State, attrs ...any) {
	t.log.Debug("state", append([]any{"from", t.state, "to", s}, attrs...)...)
	t.state = s
}

// abort moves the run to Aborted with err as its cause.
func (t *tracker) abort(err error) {
	t.log.Error("run aborted", "state", t.state, "error", err)
	t.enter(StateAborted)
	t.report.Err = err
}

// finish closes the report and appends it to the run log when one is set.
func (t *tracker) finish(ctx context.Context, runs storage.RunLog) Report {
	if t.state != StateAborted {
		t.enter(StateDone)
	}
	t.report.State = t.state
	t.report.EndedAt = t.now().UTC()

	r := t.report
	t.log.Info("run finished",
		"state", r.State,
		"fetched", r.Fetched,
		"filtered", r.Filtered,
		"summarized", r.Summarized,
		"posted", r.Posted,
		"recorded", r.Recorded,
		"failed", r.Failed,
		"duration", r.EndedAt.Sub(r.StartedAt),
	)

	if runs != nil {
		entry := r.Run()
		if err := runs.RecordRun(context.WithoutCancel(ctx), &entry); err != nil {
			t.log.Error("record run", "error", err)
		}
	}
	return r
}
