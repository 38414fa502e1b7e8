package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ktagawa/agentq/internal/eventbus"
	"github.com/ktagawa/agentq/internal/itemlog"
	"github.com/ktagawa/agentq/internal/runrecord"
	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/internal/workspace"
	"github.com/ktagawa/agentq/pkg/storage"
)

// Record is the archived form of a work item: the item itself plus its full
// run and log history, written as one JSON blob before the rows are dropped.
type Record struct {
	Item       *workitem.WorkItem     `json:"item"`
	Runs       []*runrecord.RunRecord `json:"runs"`
	Logs       []*itemlog.Entry       `json:"logs"`
	ArchivedAt time.Time              `json:"archivedAt"`
}

// Reaper sweeps settled work items past their workspace's retention window,
// archiving each one to blob storage before deleting it.
type Reaper struct {
	items      workitem.Repository
	runs       runrecord.Repository
	logs       itemlog.Repository
	workspaces workspace.Repository
	store      storage.Storage
	bus        *eventbus.Bus
	logger     *slog.Logger
	interval   time.Duration
}

func NewReaper(
	items workitem.Repository,
	runs runrecord.Repository,
	logs itemlog.Repository,
	workspaces workspace.Repository,
	store storage.Storage,
	bus *eventbus.Bus,
	logger *slog.Logger,
	interval time.Duration,
) *Reaper {
	return &Reaper{
		items:      items,
		runs:       runs,
		logs:       logs,
		workspaces: workspaces,
		store:      store,
		bus:        bus,
		logger:     logger,
		interval:   interval,
	}
}

// Run sweeps once at startup and then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.Sweep(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep archives and deletes every expired item. Failures are logged and
// skipped; the next sweep retries.
func (r *Reaper) Sweep(ctx context.Context) {
	workspaces, err := r.workspaces.List(ctx)
	if err != nil {
		r.logger.Error("reaper: failed to list workspaces", slog.String("error", err.Error()))
		return
	}
	policy := make(map[string]*workspace.Workspace, len(workspaces))
	for _, ws := range workspaces {
		policy[ws.ID] = ws
	}

	now := time.Now().UTC()
	settled, err := r.items.ListSettledBefore(ctx, now)
	if err != nil {
		r.logger.Error("reaper: failed to list settled items", slog.String("error", err.Error()))
		return
	}

	for _, item := range settled {
		ws, ok := policy[item.WorkspaceID]
		if !ok || !ws.AutoDeleteDone {
			continue
		}
		cutoff := now.AddDate(0, 0, -ws.RetentionDays)
		if item.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.reap(ctx, item); err != nil {
			r.logger.Error("reaper: failed to reap item",
				slog.String("work_item_id", item.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (r *Reaper) reap(ctx context.Context, item *workitem.WorkItem) error {
	runs, err := r.runs.ListByWorkItem(ctx, item.ID)
	if err != nil {
		return err
	}
	logs, err := r.logs.ListByWorkItem(ctx, item.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(&Record{
		Item:       item,
		Runs:       runs,
		Logs:       logs,
		ArchivedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	key := fmt.Sprintf("workspaces/%s/items/%s.json", item.WorkspaceID, item.ID)
	if err := r.store.Write(ctx, key, data); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	ids := make([]string, 0, len(runs))
	for _, rec := range runs {
		ids = append(ids, rec.ID)
	}
	if err := r.runs.MarkArchived(ctx, ids); err != nil {
		return err
	}

	// Archive write succeeded; the rows can go.
	if err := r.runs.DeleteByWorkItem(ctx, item.ID); err != nil {
		return err
	}
	if err := r.logs.DeleteByWorkItem(ctx, item.ID); err != nil {
		return err
	}
	if err := r.items.Delete(ctx, item.ID); err != nil {
		return err
	}

	r.bus.PublishNew(eventbus.Event{
		Type:        eventbus.TypeItemDeleted,
		WorkItemID:  item.ID,
		WorkspaceID: item.WorkspaceID,
		Kind:        string(item.Kind),
	})
	r.logger.Info("archived and deleted work item",
		slog.String("work_item_id", item.ID),
		slog.String("archive_key", key))
	return nil
}
