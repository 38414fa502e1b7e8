package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ktagawa/agentq/internal/eventbus"
	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/internal/workspace"
)

// Dispatcher turns bus events into push notifications, honoring the
// per-workspace notification policy. Sends are fire-and-forget; a failed
// push never affects the pass that triggered it.
type Dispatcher struct {
	eventBus      *eventbus.Bus
	workspaceRepo workspace.Repository
	sender        *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, workspaceRepo workspace.Repository, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus:      eventBus,
		workspaceRepo: workspaceRepo,
		sender:        sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *eventbus.Event) {
	var payload *NotificationPayload
	switch event.Type {
	case eventbus.TypeRunError:
		payload = &NotificationPayload{
			Title: "Agent run failed",
			Body:  event.ErrorMessage,
		}
	case eventbus.TypeStatusChanged:
		if workitem.Status(event.NewStatus) != workitem.StatusInReview {
			return
		}
		payload = &NotificationPayload{
			Title: "Task ready for review",
		}
	default:
		return
	}

	ws, err := d.workspaceRepo.Get(ctx, event.WorkspaceID)
	if err != nil {
		slog.Error("push dispatcher: failed to get workspace", "id", event.WorkspaceID, "error", err)
		return
	}
	if event.Type == eventbus.TypeRunError && !ws.NotifyOnError {
		return
	}
	if event.Type == eventbus.TypeStatusChanged && !ws.NotifyOnInReview {
		return
	}

	payload.URL = fmt.Sprintf("/workspaces/%s/items/%s", event.WorkspaceID, event.WorkItemID)
	payload.Tag = event.WorkItemID
	d.sender.SendToAll(ctx, payload)
}
