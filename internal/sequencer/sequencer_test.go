package sequencer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/cliadapter"
	"github.com/ktagawa/agentq/internal/config"
	"github.com/ktagawa/agentq/internal/eventbus"
	"github.com/ktagawa/agentq/internal/itemlog"
	"github.com/ktagawa/agentq/internal/runner"
	"github.com/ktagawa/agentq/internal/runrecord"
	"github.com/ktagawa/agentq/internal/workdir"
	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/internal/workspace"
)

// fakeItemRepo implements just enough of workitem.Repository for passes.
type fakeItemRepo struct {
	mu    sync.Mutex
	items map[string]*workitem.WorkItem

	released       []string
	releasedStatus workitem.Status
	releasedCursor *int
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: map[string]*workitem.WorkItem{}}
}

func (r *fakeItemRepo) Create(ctx context.Context, item *workitem.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *fakeItemRepo) Get(ctx context.Context, id string) (*workitem.WorkItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := *r.items[id]
	return &item, nil
}

func (r *fakeItemRepo) List(ctx context.Context, workspaceID string) ([]*workitem.WorkItem, error) {
	return nil, nil
}

func (r *fakeItemRepo) Update(ctx context.Context, item *workitem.WorkItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *fakeItemRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *fakeItemRepo) Enqueue(ctx context.Context, id string, pending workitem.Status) (bool, error) {
	return true, nil
}

func (r *fakeItemRepo) ClaimNext(ctx context.Context, maxInFlight int) (*workitem.WorkItem, error) {
	return nil, nil
}

func (r *fakeItemRepo) Release(ctx context.Context, id string, status workitem.Status, cursor *int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || !item.InFlight {
		return false, nil
	}
	r.released = append(r.released, id)
	r.releasedStatus = status
	r.releasedCursor = cursor
	item.Status = status
	item.InFlight = false
	item.AgentCursor = cursor
	item.EnqueuedAt = nil
	return true, nil
}

func (r *fakeItemRepo) SetAgentCursor(ctx context.Context, id string, cursor int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.items[id]; ok && item.InFlight {
		c := cursor
		item.AgentCursor = &c
	}
	return nil
}

func (r *fakeItemRepo) SetStatus(ctx context.Context, id string, status workitem.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.InFlight {
		return false, nil
	}
	item.Status = status
	item.AgentCursor = nil
	item.EnqueuedAt = nil
	return true, nil
}

func (r *fakeItemRepo) SetPrioritized(ctx context.Context, id string, prioritized bool) error {
	return nil
}

func (r *fakeItemRepo) ListSettledBefore(ctx context.Context, cutoff time.Time) ([]*workitem.WorkItem, error) {
	return nil, nil
}

type fakeAgentRepo struct {
	agents []*agent.Agent
}

func (r *fakeAgentRepo) Create(ctx context.Context, a *agent.Agent) error { return nil }
func (r *fakeAgentRepo) Get(ctx context.Context, id string) (*agent.Agent, error) {
	return nil, nil
}
func (r *fakeAgentRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]*agent.Agent, error) {
	return r.agents, nil
}
func (r *fakeAgentRepo) Update(ctx context.Context, a *agent.Agent) error { return nil }
func (r *fakeAgentRepo) Delete(ctx context.Context, id string) error      { return nil }
func (r *fakeAgentRepo) Reorder(ctx context.Context, workspaceID string, orderedIDs []string) error {
	return nil
}

type fakeWorkspaceRepo struct {
	ws *workspace.Workspace
}

func (r *fakeWorkspaceRepo) Create(ctx context.Context, ws *workspace.Workspace) error { return nil }
func (r *fakeWorkspaceRepo) Get(ctx context.Context, id string) (*workspace.Workspace, error) {
	return r.ws, nil
}
func (r *fakeWorkspaceRepo) GetByName(ctx context.Context, name string) (*workspace.Workspace, error) {
	return r.ws, nil
}
func (r *fakeWorkspaceRepo) List(ctx context.Context) ([]*workspace.Workspace, error) {
	return []*workspace.Workspace{r.ws}, nil
}
func (r *fakeWorkspaceRepo) Update(ctx context.Context, ws *workspace.Workspace) error { return nil }
func (r *fakeWorkspaceRepo) Upsert(ctx context.Context, ws *workspace.Workspace) error { return nil }

type fakeRunRepo struct {
	mu       sync.Mutex
	created  []*runrecord.RunRecord
	finished map[string]runrecord.Outcome
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{finished: map[string]runrecord.Outcome{}}
}

func (r *fakeRunRepo) Create(ctx context.Context, rec *runrecord.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, rec)
	return nil
}

func (r *fakeRunRepo) Get(ctx context.Context, id string) (*runrecord.RunRecord, error) {
	return nil, nil
}

func (r *fakeRunRepo) ListByWorkItem(ctx context.Context, workItemID string) ([]*runrecord.RunRecord, error) {
	return nil, nil
}

func (r *fakeRunRepo) Finish(ctx context.Context, id string, outcome runrecord.Outcome, rawOutput, errorMessage string, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = outcome
	return nil
}

func (r *fakeRunRepo) MarkArchived(ctx context.Context, ids []string) error          { return nil }
func (r *fakeRunRepo) DeleteByWorkItem(ctx context.Context, workItemID string) error { return nil }

func (r *fakeRunRepo) outcomes() []runrecord.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runrecord.Outcome, 0, len(r.created))
	for _, rec := range r.created {
		out = append(out, r.finished[rec.ID])
	}
	return out
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*itemlog.Entry
}

func (r *fakeLogRepo) Append(ctx context.Context, e *itemlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeLogRepo) ListByWorkItem(ctx context.Context, workItemID string) ([]*itemlog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*itemlog.Entry(nil), r.entries...), nil
}

func (r *fakeLogRepo) DeleteByWorkItem(ctx context.Context, workItemID string) error { return nil }

// scriptedRunner returns one pre-programmed result per invocation, in order.
type scriptedRunner struct {
	mu      sync.Mutex
	results []*runner.Result
	calls   []runner.Request
}

func (r *scriptedRunner) Run(ctx context.Context, req runner.Request) (*runner.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if len(r.results) == 0 {
		return &runner.Result{Stdout: "RESULT: continue\n"}, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res, nil
}

type fixture struct {
	items  *fakeItemRepo
	agents *fakeAgentRepo
	runs   *fakeRunRepo
	logs   *fakeLogRepo
	runner *scriptedRunner
	seq    *Sequencer
	item   *workitem.WorkItem
}

func newFixture(t *testing.T, agentNames []string, results []*runner.Result) *fixture {
	t.Helper()

	ws := &workspace.Workspace{
		ID:             ulid.Make().String(),
		Name:           "test",
		WorkingDirMode: workspace.ModeTemp,
	}
	agents := make([]*agent.Agent, 0, len(agentNames))
	for i, name := range agentNames {
		agents = append(agents, &agent.Agent{
			ID:          ulid.Make().String(),
			WorkspaceID: ws.ID,
			Name:        name,
			CLIType:     agent.CLITypeClaude,
			Position:    i,
		})
	}

	items := newFakeItemRepo()
	cursor := 0
	item := &workitem.WorkItem{
		ID:          ulid.Make().String(),
		WorkspaceID: ws.ID,
		Kind:        workitem.KindTask,
		Title:       "build the thing",
		Status:      workitem.StatusInProgress,
		AgentCursor: &cursor,
		InFlight:    true,
	}
	require.NoError(t, items.Create(context.Background(), item))

	runs := newFakeRunRepo()
	logs := &fakeLogRepo{}
	scripted := &scriptedRunner{results: results}
	dirs, err := workdir.NewManager(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	seq := New(
		items,
		&fakeAgentRepo{agents: agents},
		&fakeWorkspaceRepo{ws: ws},
		runs,
		logs,
		cliadapter.NewRegistry(&config.AdapterEnv{}, nil),
		scripted,
		dirs,
		eventbus.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		&config.RunnerEnv{RunTimeout: time.Minute, KillGrace: time.Second},
	)
	return &fixture{
		items:  items,
		agents: &fakeAgentRepo{agents: agents},
		runs:   runs,
		logs:   logs,
		runner: scripted,
		seq:    seq,
		item:   item,
	}
}

func TestRunPassRunsAgentsInOrder(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer", "reviewer"}, []*runner.Result{
		{Stdout: "RESULT: continue\n"},
		{Stdout: "RESULT: comment-only\n"},
		{Stdout: "RESULT: continue\n"},
	})

	f.seq.RunPass(context.Background(), f.item)

	// Every agent ran exactly once, in pipeline order.
	require.Len(t, f.runner.calls, 3)
	require.Len(t, f.runs.created, 3)
	assert.Equal(t, []runrecord.Outcome{
		runrecord.OutcomeContinue,
		runrecord.OutcomeCommentOnly,
		runrecord.OutcomeContinue,
	}, f.runs.outcomes())

	// Exhausting the pipeline resolves the task into review.
	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
	assert.Nil(t, f.items.releasedCursor)
}

func TestRunPassStopsEarlyOnNeedsReview(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer", "reviewer"}, []*runner.Result{
		{Stdout: "RESULT: needs-review\n"},
	})

	f.seq.RunPass(context.Background(), f.item)

	// Only the first agent ran; the rest of the pipeline was skipped and the
	// cursor marks where the pass stopped.
	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
	require.NotNil(t, f.items.releasedCursor)
	assert.Equal(t, 0, *f.items.releasedCursor)
}

func TestRunPassTreatsTimeoutAsError(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer"}, []*runner.Result{
		{Stdout: "partial\n", TimedOut: true, ExitCode: -1},
	})

	f.seq.RunPass(context.Background(), f.item)

	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, []runrecord.Outcome{runrecord.OutcomeError}, f.runs.outcomes())
	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
}

func TestRunPassStopsOnNonZeroExit(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer"}, []*runner.Result{
		{Stdout: "boom\n", Stderr: "stack", ExitCode: 2},
	})

	f.seq.RunPass(context.Background(), f.item)

	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, []runrecord.Outcome{runrecord.OutcomeError}, f.runs.outcomes())
}

func TestRunPassCancelled(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer"}, []*runner.Result{
		{Stdout: "partial\n", Cancelled: true, ExitCode: -1},
	})

	f.seq.RunPass(context.Background(), f.item)

	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, []runrecord.Outcome{runrecord.OutcomeCancelled}, f.runs.outcomes())
	// A cancelled task still lands in review for a human look.
	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
	require.NotNil(t, f.items.releasedCursor)
	assert.Equal(t, 0, *f.items.releasedCursor)
}

func TestRunPassChatErrorFails(t *testing.T) {
	f := newFixture(t, []string{"assistant"}, []*runner.Result{
		{Stdout: "", ExitCode: 1},
	})
	f.item.Kind = workitem.KindChat
	require.NoError(t, f.items.Update(context.Background(), f.item))

	f.seq.RunPass(context.Background(), f.item)

	assert.Equal(t, workitem.StatusFailed, f.items.releasedStatus)
}

func TestRunPassResumesFromCursor(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer", "reviewer"}, nil)
	cursor := 2
	f.item.AgentCursor = &cursor

	f.seq.RunPass(context.Background(), f.item)

	// Only the reviewer (index 2) ran.
	require.Len(t, f.runs.created, 1)
	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
}

func TestRunPassCursorMarksStoppingAgent(t *testing.T) {
	f := newFixture(t, []string{"planner", "implementer", "reviewer"}, []*runner.Result{
		{Stdout: "RESULT: continue\n"},
		{Stdout: "RESULT: needs-review\n"},
	})

	f.seq.RunPass(context.Background(), f.item)

	// The planner advanced the cursor, the implementer stopped the pass, so
	// the recorded cursor names the implementer.
	require.Len(t, f.items.released, 1)
	require.NotNil(t, f.items.releasedCursor)
	assert.Equal(t, 1, *f.items.releasedCursor)
}

func TestRunPassSkipsSettleWhenAlreadyReleased(t *testing.T) {
	f := newFixture(t, []string{"planner"}, []*runner.Result{
		{Stdout: "partial\n", Cancelled: true, ExitCode: -1},
	})

	// A user cancel already settled the item while the process was being
	// torn down.
	f.item.InFlight = false
	f.item.Status = workitem.StatusInReview
	require.NoError(t, f.items.Update(context.Background(), f.item))

	f.seq.RunPass(context.Background(), f.item)

	// The pass must not release or overwrite the settled state.
	assert.Empty(t, f.items.released)
	item, err := f.items.Get(context.Background(), f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, workitem.StatusInReview, item.Status)
	assert.False(t, item.InFlight)
}

func TestRunPassPlannerImplementerScenario(t *testing.T) {
	// First pass: the planner plans, the implementer asks for review.
	f := newFixture(t, []string{"planner", "implementer"}, []*runner.Result{
		{Stdout: "plan written\nRESULT: continue\n"},
		{Stdout: "half done, unclear requirement\nRESULT: needs-review\n"},
	})

	f.seq.RunPass(context.Background(), f.item)
	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
	require.Len(t, f.runs.created, 2)
	// The pass stopped at the implementer, one step past the planner.
	require.NotNil(t, f.items.releasedCursor)
	assert.Equal(t, 1, *f.items.releasedCursor)

	// A human comments and the item re-enters; the second pass starts from
	// the planner again and this time runs clean through.
	item, err := f.items.Get(context.Background(), f.item.ID)
	require.NoError(t, err)
	cursor := 0
	item.Status = workitem.StatusInProgress
	item.AgentCursor = &cursor
	item.InFlight = true
	require.NoError(t, f.items.Update(context.Background(), item))
	f.runner.mu.Lock()
	f.runner.results = []*runner.Result{
		{Stdout: "plan adjusted\nRESULT: continue\n"},
		{Stdout: "finished\nRESULT: continue\n"},
	}
	f.runner.mu.Unlock()

	f.seq.RunPass(context.Background(), item)

	assert.Equal(t, workitem.StatusInReview, f.items.releasedStatus)
	require.Len(t, f.runs.created, 4)
	assert.Equal(t, []runrecord.Outcome{
		runrecord.OutcomeContinue,
		runrecord.OutcomeNeedsReview,
		runrecord.OutcomeContinue,
		runrecord.OutcomeContinue,
	}, f.runs.outcomes())
}

func TestRunPassPassesWorkingDirAndPrompt(t *testing.T) {
	f := newFixture(t, []string{"planner"}, nil)

	f.seq.RunPass(context.Background(), f.item)

	require.Len(t, f.runner.calls, 1)
	call := f.runner.calls[0]
	assert.NotEmpty(t, call.Dir)
	assert.Contains(t, call.Stdin, "build the thing")
	assert.Contains(t, call.Stdin, "RESULT: continue")
	assert.Equal(t, time.Minute, call.Timeout)
}
