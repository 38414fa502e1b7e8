package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

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

// ProcessRunner abstracts child execution so passes can be tested without
// spawning real CLIs.
type ProcessRunner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// AdapterResolver is the slice of the registry the sequencer needs.
type AdapterResolver interface {
	Get(cliType agent.CLIType) (cliadapter.Adapter, error)
}

// Sequencer walks a claimed item through its workspace's agent pipeline in
// position order, one agent at a time, and settles the item when the pass
// ends.
type Sequencer struct {
	items      workitem.Repository
	agents     agent.Repository
	workspaces workspace.Repository
	runs       runrecord.Repository
	logs       itemlog.Repository
	adapters   AdapterResolver
	runner     ProcessRunner
	dirs       *workdir.Manager
	bus        *eventbus.Bus
	logger     *slog.Logger

	runTimeout time.Duration
	killGrace  time.Duration
}

func New(
	items workitem.Repository,
	agents agent.Repository,
	workspaces workspace.Repository,
	runs runrecord.Repository,
	logs itemlog.Repository,
	adapters AdapterResolver,
	run ProcessRunner,
	dirs *workdir.Manager,
	bus *eventbus.Bus,
	logger *slog.Logger,
	env *config.RunnerEnv,
) *Sequencer {
	return &Sequencer{
		items:      items,
		agents:     agents,
		workspaces: workspaces,
		runs:       runs,
		logs:       logs,
		adapters:   adapters,
		runner:     run,
		dirs:       dirs,
		bus:        bus,
		logger:     logger,
		runTimeout: env.RunTimeout,
		killGrace:  env.KillGrace,
	}
}

// RunPass executes one full pass over a freshly claimed item. It always
// releases the claim, whatever happens inside; ctx cancellation means the
// pass was cancelled by a user or daemon shutdown.
func (s *Sequencer) RunPass(ctx context.Context, item *workitem.WorkItem) {
	logger := s.logger.With(
		slog.String("work_item_id", item.ID),
		slog.String("kind", string(item.Kind)))

	ws, err := s.workspaces.Get(ctx, item.WorkspaceID)
	if err != nil {
		logger.Error("pass setup failed", slog.String("error", err.Error()))
		s.settle(ctx, item, workitem.EventError, "workspace lookup failed: "+err.Error(), nil)
		return
	}
	agents, err := s.agents.ListByWorkspace(ctx, item.WorkspaceID)
	if err != nil {
		logger.Error("pass setup failed", slog.String("error", err.Error()))
		s.settle(ctx, item, workitem.EventError, "agent lookup failed: "+err.Error(), nil)
		return
	}

	dir, err := s.dirs.Acquire(ws)
	if err != nil {
		logger.Error("working dir unavailable", slog.String("error", err.Error()))
		s.settle(ctx, item, workitem.EventError, "working dir unavailable: "+err.Error(), nil)
		return
	}
	defer s.dirs.Release(dir)

	cursor := 0
	if item.AgentCursor != nil {
		cursor = *item.AgentCursor
	}

	for i := cursor; i < len(agents); i++ {
		if ctx.Err() != nil {
			s.settle(ctx, item, workitem.EventCancel, "pass cancelled", &i)
			return
		}

		a := agents[i]
		outcome, errMsg := s.runAgent(ctx, item, a, dir.Path)

		switch outcome {
		case runrecord.OutcomeContinue, runrecord.OutcomeCommentOnly:
			// Persist progress so the recorded cursor always names the
			// next agent, even if the pass is cut short externally.
			if err := s.items.SetAgentCursor(ctx, item.ID, i+1); err != nil {
				logger.Warn("failed to persist agent cursor",
					slog.Int("cursor", i+1),
					slog.String("error", err.Error()))
			}
			continue
		case runrecord.OutcomeNeedsReview:
			s.appendLog(ctx, item.ID, itemlog.KindAgent,
				fmt.Sprintf("agent %s requested review, stopping pass", a.Name))
			s.settle(ctx, item, workitem.EventNeedsReview, "", &i)
			return
		case runrecord.OutcomeCancelled:
			s.settle(ctx, item, workitem.EventCancel, errMsg, &i)
			return
		default:
			s.settle(ctx, item, workitem.EventError, errMsg, &i)
			return
		}
	}

	s.settle(ctx, item, workitem.EventResolve, "", nil)
}

// runAgent executes one agent invocation and records it. It never returns an
// error: every failure mode is folded into the outcome.
func (s *Sequencer) runAgent(ctx context.Context, item *workitem.WorkItem, a *agent.Agent, dir string) (runrecord.Outcome, string) {
	logger := s.logger.With(
		slog.String("work_item_id", item.ID),
		slog.String("agent", a.Name))

	rec := &runrecord.RunRecord{
		ID:         ulid.Make().String(),
		WorkItemID: item.ID,
		AgentID:    &a.ID,
		WorkingDir: dir,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.runs.Create(ctx, rec); err != nil {
		logger.Error("failed to open run record", slog.String("error", err.Error()))
		return runrecord.OutcomeError, "failed to open run record: " + err.Error()
	}

	s.bus.PublishNew(eventbus.Event{
		Type:        eventbus.TypeAgentStarted,
		WorkItemID:  item.ID,
		WorkspaceID: item.WorkspaceID,
		Kind:        string(item.Kind),
		AgentName:   a.Name,
	})
	s.appendLog(ctx, item.ID, itemlog.KindAgent, fmt.Sprintf("agent %s started", a.Name))

	outcome, rawOutput, errMsg := s.invoke(ctx, item, a, dir)

	if err := s.runs.Finish(ctx, rec.ID, outcome, rawOutput, errMsg, time.Now().UTC()); err != nil {
		logger.Error("failed to close run record", slog.String("error", err.Error()))
	}
	s.bus.PublishNew(eventbus.Event{
		Type:         eventbus.TypeAgentFinished,
		WorkItemID:   item.ID,
		WorkspaceID:  item.WorkspaceID,
		Kind:         string(item.Kind),
		AgentName:    a.Name,
		Outcome:      string(outcome),
		ErrorMessage: errMsg,
	})
	s.appendLog(ctx, item.ID, itemlog.KindAgent,
		fmt.Sprintf("agent %s finished: %s", a.Name, outcome))
	logger.Info("agent finished", slog.String("outcome", string(outcome)))
	return outcome, errMsg
}

func (s *Sequencer) invoke(ctx context.Context, item *workitem.WorkItem, a *agent.Agent, dir string) (runrecord.Outcome, string, string) {
	adapter, err := s.adapters.Get(a.CLIType)
	if err != nil {
		return runrecord.OutcomeError, "", err.Error()
	}

	history, err := s.logs.ListByWorkItem(ctx, item.ID)
	if err != nil {
		s.logger.Warn("failed to load item history for prompt",
			slog.String("work_item_id", item.ID),
			slog.String("error", err.Error()))
		history = nil
	}

	inv := adapter.Invocation(buildPrompt(a, item, history))
	res, err := s.runner.Run(ctx, runner.Request{
		Path:      inv.Path,
		Args:      inv.Args,
		Env:       inv.Env,
		Dir:       dir,
		Stdin:     inv.Stdin,
		Timeout:   s.runTimeout,
		KillGrace: s.killGrace,
	})
	if err != nil {
		return runrecord.OutcomeError, "", "failed to start agent process: " + err.Error()
	}

	switch {
	case res.Cancelled:
		return runrecord.OutcomeCancelled, res.Stdout, "cancelled"
	case res.TimedOut:
		// A timeout is an error outcome like any other process failure.
		return runrecord.OutcomeError, res.Stdout,
			fmt.Sprintf("timed out after %s", s.runTimeout)
	case res.ExitCode != 0:
		return runrecord.OutcomeError, res.Stdout,
			fmt.Sprintf("exited with code %d: %s", res.ExitCode, tail(res.Stderr, 500))
	}

	outcome, _ := cliadapter.ParseOutcome(res.Stdout)
	return outcome, res.Stdout, ""
}

// settle ends the pass: it applies the closing transition, drops the claim,
// and announces the result. The recorded cursor names the agent the pass
// stopped at, nil when the pipeline was exhausted; re-entry via enqueue
// resets it to the top either way.
func (s *Sequencer) settle(ctx context.Context, item *workitem.WorkItem, event workitem.Event, errMsg string, cursor *int) {
	next, err := workitem.Transition(item.Kind, workitem.StatusInProgress, event)
	if err != nil {
		// Cannot happen with the current tables; keep the item visible
		// rather than stuck in flight.
		s.logger.Error("settle transition rejected",
			slog.String("work_item_id", item.ID),
			slog.String("event", string(event)))
		next = item.Status
	}

	// Use a fresh context so a cancelled pass still persists its end state.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	changed, err := s.items.Release(releaseCtx, item.ID, next, cursor)
	if err != nil {
		s.logger.Error("failed to release work item",
			slog.String("work_item_id", item.ID),
			slog.String("error", err.Error()))
		return
	}
	if !changed {
		// A user cancel released the item while the pass was winding down;
		// its transition and events already happened.
		s.logger.Info("work item already settled",
			slog.String("work_item_id", item.ID),
			slog.String("event", string(event)))
		return
	}

	s.appendLog(releaseCtx, item.ID, itemlog.KindStatus,
		fmt.Sprintf("pass ended: %s -> %s", event, next))
	s.bus.PublishNew(eventbus.Event{
		Type:         eventbus.TypeStatusChanged,
		WorkItemID:   item.ID,
		WorkspaceID:  item.WorkspaceID,
		Kind:         string(item.Kind),
		OldStatus:    string(workitem.StatusInProgress),
		NewStatus:    string(next),
		ErrorMessage: errMsg,
	})
	if event == workitem.EventError {
		s.bus.PublishNew(eventbus.Event{
			Type:         eventbus.TypeRunError,
			WorkItemID:   item.ID,
			WorkspaceID:  item.WorkspaceID,
			Kind:         string(item.Kind),
			ErrorMessage: errMsg,
		})
	}
}

func (s *Sequencer) appendLog(ctx context.Context, itemID string, kind itemlog.LogKind, message string) {
	err := s.logs.Append(ctx, &itemlog.Entry{
		ID:         ulid.Make().String(),
		WorkItemID: itemID,
		Kind:       kind,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to append item log",
			slog.String("work_item_id", itemID),
			slog.String("error", err.Error()))
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
