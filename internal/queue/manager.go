package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/eventbus"
	"github.com/ktagawa/agentq/internal/itemlog"
	"github.com/ktagawa/agentq/internal/runrecord"
	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/internal/workspace"
	"github.com/ktagawa/agentq/pkg/cerr"
)

// Manager owns the user-facing work item lifecycle: create, enqueue, cancel,
// prioritize, comment, approve. Pass execution lives in the sequencer; the
// manager only hands out cancellation hooks for running passes.
type Manager struct {
	items      workitem.Repository
	agents     agent.Repository
	workspaces workspace.Repository
	runs       runrecord.Repository
	logs       itemlog.Repository
	bus        *eventbus.Bus
	logger     *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewManager(
	items workitem.Repository,
	agents agent.Repository,
	workspaces workspace.Repository,
	runs runrecord.Repository,
	logs itemlog.Repository,
	bus *eventbus.Bus,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		items:      items,
		agents:     agents,
		workspaces: workspaces,
		runs:       runs,
		logs:       logs,
		bus:        bus,
		logger:     logger,
		running:    make(map[string]context.CancelFunc),
	}
}

type CreateParams struct {
	WorkspaceID string
	Kind        workitem.Kind
	Title       string
	Body        string
}

func (m *Manager) Create(ctx context.Context, p CreateParams) (*workitem.WorkItem, error) {
	if p.Kind != workitem.KindTask && p.Kind != workitem.KindChat {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown kind %q", p.Kind), nil)
	}
	if p.Title == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "title is required", nil)
	}
	if _, err := m.workspaces.Get(ctx, p.WorkspaceID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &workitem.WorkItem{
		ID:          ulid.Make().String(),
		WorkspaceID: p.WorkspaceID,
		Kind:        p.Kind,
		Title:       p.Title,
		Body:        p.Body,
		Status:      workitem.InitialStatus(p.Kind),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.items.Create(ctx, item); err != nil {
		return nil, err
	}
	m.appendLog(ctx, item.ID, itemlog.KindSystem, fmt.Sprintf("created as %s", item.Kind))
	return item, nil
}

// Enqueue marks an item eligible for processing. Enqueueing an already
// pending or in-flight item is an idempotent no-op. When the workspace has
// no agents the item skips the queue entirely.
func (m *Manager) Enqueue(ctx context.Context, id string) (*workitem.WorkItem, error) {
	item, err := m.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	pending, err := workitem.Transition(item.Kind, item.Status, workitem.EventEnqueue)
	if err != nil {
		if item.InFlight || item.EnqueuedAt != nil {
			// Already on its way; treat a repeat enqueue as a no-op.
			return item, nil
		}
		return nil, cerr.NewError(cerr.FailedPrecondition, err.Error(), err)
	}

	agents, err := m.agents.ListByWorkspace(ctx, item.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return m.skipToReview(ctx, item, pending)
	}

	changed, err := m.items.Enqueue(ctx, id, pending)
	if err != nil {
		return nil, err
	}
	if !changed {
		return m.items.Get(ctx, id)
	}

	if item.Status != pending {
		m.publishStatus(item, item.Status, pending)
	}
	m.appendLog(ctx, id, itemlog.KindStatus, "enqueued")
	m.logger.Info("work item enqueued",
		slog.String("work_item_id", id),
		slog.String("status", string(pending)))
	return m.items.Get(ctx, id)
}

// skipToReview is the no-agents fast path: the item settles without ever
// being claimed, with a pass-level run record for the audit trail.
func (m *Manager) skipToReview(ctx context.Context, item *workitem.WorkItem, pending workitem.Status) (*workitem.WorkItem, error) {
	next, err := workitem.Transition(item.Kind, pending, workitem.EventSkipToReview)
	if err != nil {
		return nil, cerr.NewError(cerr.FailedPrecondition, err.Error(), err)
	}

	old := item.Status
	now := time.Now().UTC()
	item.Status = next
	item.AgentCursor = nil
	item.EnqueuedAt = nil
	if err := m.items.Update(ctx, item); err != nil {
		return nil, err
	}

	rec := &runrecord.RunRecord{
		ID:         ulid.Make().String(),
		WorkItemID: item.ID,
		StartedAt:  now,
	}
	if err := m.runs.Create(ctx, rec); err != nil {
		return nil, err
	}
	if err := m.runs.Finish(ctx, rec.ID, runrecord.OutcomeCommentOnly,
		"no agents configured; settled without a pass", "", now); err != nil {
		return nil, err
	}

	m.appendLog(ctx, item.ID, itemlog.KindSystem, "no agents configured, skipped to "+string(next))
	m.publishStatus(item, old, next)
	return item, nil
}

// Cancel force-terminates an item. A running pass has its status flipped and
// claim lock dropped right away; the child process is torn down
// asynchronously. A pending item is pulled out of the queue. Cancelling an
// item that is already settled is a no-op.
func (m *Manager) Cancel(ctx context.Context, id string) (*workitem.WorkItem, error) {
	item, err := m.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.InFlight {
		return m.cancelRunning(ctx, item)
	}

	next, err := workitem.Transition(item.Kind, item.Status, workitem.EventCancel)
	if err != nil {
		// Rejections are no-ops: a settled item has nothing to cancel.
		m.logger.Debug("cancel is a no-op",
			slog.String("work_item_id", id),
			slog.String("status", string(item.Status)))
		return item, nil
	}

	changed, err := m.items.SetStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A worker claimed the item between the read and the write.
		fresh, err := m.items.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if fresh.InFlight {
			return m.cancelRunning(ctx, fresh)
		}
		return fresh, nil
	}

	old := item.Status
	item.Status = next
	item.AgentCursor = nil
	item.EnqueuedAt = nil
	m.appendLog(ctx, id, itemlog.KindStatus, "cancelled before claim")
	m.publishStatus(item, old, next)
	return item, nil
}

// cancelRunning settles a claimed item immediately: the terminal status and
// lock release happen now, before the child process has exited. The pass
// observes the context cancellation, reaps the process, and finds the item
// already settled when it tries to release.
func (m *Manager) cancelRunning(ctx context.Context, item *workitem.WorkItem) (*workitem.WorkItem, error) {
	next, err := workitem.Transition(item.Kind, workitem.StatusInProgress, workitem.EventCancel)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "cancel transition rejected for in-flight item", err)
	}

	m.mu.Lock()
	cancel, ok := m.running[item.ID]
	m.mu.Unlock()
	if ok {
		cancel()
	}

	changed, err := m.items.Release(ctx, item.ID, next, item.AgentCursor)
	if err != nil {
		return nil, err
	}
	if changed {
		old := item.Status
		item.Status = next
		item.InFlight = false
		item.EnqueuedAt = nil
		m.appendLog(ctx, item.ID, itemlog.KindStatus, "cancelled")
		m.publishStatus(item, old, next)
		m.logger.Info("cancelled running pass", slog.String("work_item_id", item.ID))
		return item, nil
	}
	// The pass settled on its own first.
	return m.items.Get(ctx, item.ID)
}

// Prioritize flips queue priority; prioritized tasks are claimed before any
// FIFO ordering.
func (m *Manager) Prioritize(ctx context.Context, id string, prioritized bool) (*workitem.WorkItem, error) {
	if err := m.items.SetPrioritized(ctx, id, prioritized); err != nil {
		return nil, err
	}
	m.appendLog(ctx, id, itemlog.KindSystem, fmt.Sprintf("prioritized=%t", prioritized))
	return m.items.Get(ctx, id)
}

// Comment appends to the audit log and, when the item is resting, re-enters
// it into the queue. Comments on pending or running items just land in the
// log for the next pass to read.
func (m *Manager) Comment(ctx context.Context, id, message string) (*workitem.WorkItem, error) {
	if message == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "comment message is required", nil)
	}
	item, err := m.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.appendLog(ctx, id, itemlog.KindComment, message)
	if item.Resting() {
		return m.Enqueue(ctx, id)
	}
	return item, nil
}

// Approve is the human sign-off that moves a reviewed task to done.
func (m *Manager) Approve(ctx context.Context, id string) (*workitem.WorkItem, error) {
	return m.applyUserEvent(ctx, id, workitem.EventApprove, "approved")
}

// Reopen moves a done task back to todo without enqueueing it.
func (m *Manager) Reopen(ctx context.Context, id string) (*workitem.WorkItem, error) {
	return m.applyUserEvent(ctx, id, workitem.EventReopen, "reopened")
}

func (m *Manager) applyUserEvent(ctx context.Context, id string, event workitem.Event, logMsg string) (*workitem.WorkItem, error) {
	item, err := m.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := workitem.Transition(item.Kind, item.Status, event)
	if err != nil {
		return nil, cerr.NewError(cerr.FailedPrecondition, err.Error(), err)
	}
	changed, err := m.items.SetStatus(ctx, id, next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, cerr.NewError(cerr.FailedPrecondition, "work item changed concurrently", nil)
	}
	old := item.Status
	item.Status = next
	item.AgentCursor = nil
	item.EnqueuedAt = nil
	m.appendLog(ctx, id, itemlog.KindStatus, logMsg)
	m.publishStatus(item, old, next)
	return item, nil
}

// Delete removes a resting item together with its runs and logs.
func (m *Manager) Delete(ctx context.Context, id string) error {
	item, err := m.items.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.InFlight || item.EnqueuedAt != nil {
		return cerr.NewError(cerr.FailedPrecondition, "cannot delete a queued or running item", nil)
	}
	if err := m.runs.DeleteByWorkItem(ctx, id); err != nil {
		return err
	}
	if err := m.logs.DeleteByWorkItem(ctx, id); err != nil {
		return err
	}
	if err := m.items.Delete(ctx, id); err != nil {
		return err
	}
	m.bus.PublishNew(eventbus.Event{
		Type:        eventbus.TypeItemDeleted,
		WorkItemID:  item.ID,
		WorkspaceID: item.WorkspaceID,
		Kind:        string(item.Kind),
	})
	return nil
}

// Track registers the cancel hook for a claimed item. The worker calls it
// right after a successful claim.
func (m *Manager) Track(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.running[id] = cancel
	m.mu.Unlock()
}

// Untrack drops the cancel hook once the pass has fully ended.
func (m *Manager) Untrack(id string) {
	m.mu.Lock()
	delete(m.running, id)
	m.mu.Unlock()
}

func (m *Manager) appendLog(ctx context.Context, itemID string, kind itemlog.LogKind, message string) {
	err := m.logs.Append(ctx, &itemlog.Entry{
		ID:         ulid.Make().String(),
		WorkItemID: itemID,
		Kind:       kind,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("failed to append item log",
			slog.String("work_item_id", itemID),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) publishStatus(item *workitem.WorkItem, old, next workitem.Status) {
	m.bus.PublishNew(eventbus.Event{
		Type:        eventbus.TypeStatusChanged,
		WorkItemID:  item.ID,
		WorkspaceID: item.WorkspaceID,
		Kind:        string(item.Kind),
		OldStatus:   string(old),
		NewStatus:   string(next),
	})
}
