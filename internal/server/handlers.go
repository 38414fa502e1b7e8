package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/notifier"
	"github.com/ktagawa/agentq/internal/queue"
	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/pkg/cerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}

type itemView struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	Prioritized bool       `json:"prioritized"`
	AgentCursor *int       `json:"agentCursor,omitempty"`
	InFlight    bool       `json:"inFlight"`
	EnqueuedAt  *time.Time `json:"enqueuedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toItemView(item *workitem.WorkItem) itemView {
	return itemView{
		ID:          item.ID,
		WorkspaceID: item.WorkspaceID,
		Kind:        string(item.Kind),
		Title:       item.Title,
		Body:        item.Body,
		Status:      string(item.Status),
		Prioritized: item.Prioritized,
		AgentCursor: item.AgentCursor,
		InFlight:    item.InFlight,
		EnqueuedAt:  item.EnqueuedAt,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID string `json:"workspaceId"`
		Kind        string `json:"kind"`
		Title       string `json:"title"`
		Body        string `json:"body"`
		Enqueue     bool   `json:"enqueue"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	item, err := s.queue.Create(r.Context(), queue.CreateParams{
		WorkspaceID: req.WorkspaceID,
		Kind:        workitem.Kind(req.Kind),
		Title:       req.Title,
		Body:        req.Body,
	})
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	if req.Enqueue {
		item, err = s.queue.Enqueue(r.Context(), item.ID)
		if err != nil {
			cerr.WriteHTTP(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, toItemView(item))
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.items.List(r.Context(), r.URL.Query().Get("workspaceId"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	views := make([]itemView, 0, len(items))
	for _, item := range items {
		views = append(views, toItemView(item))
	}
	writeJSON(w, http.StatusOK, views)
}

type runView struct {
	ID           string     `json:"id"`
	AgentID      *string    `json:"agentId,omitempty"`
	WorkingDir   string     `json:"workingDir"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	RawOutput    string     `json:"rawOutput"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type logView struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.items.Get(r.Context(), id)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	runs, err := s.runs.ListByWorkItem(r.Context(), id)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	logs, err := s.logs.ListByWorkItem(r.Context(), id)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}

	runViews := make([]runView, 0, len(runs))
	for _, rec := range runs {
		runViews = append(runViews, runView{
			ID:           rec.ID,
			AgentID:      rec.AgentID,
			WorkingDir:   rec.WorkingDir,
			StartedAt:    rec.StartedAt,
			FinishedAt:   rec.FinishedAt,
			Outcome:      string(rec.Outcome),
			RawOutput:    rec.RawOutput,
			ErrorMessage: rec.ErrorMessage,
		})
	}
	logViews := make([]logView, 0, len(logs))
	for _, e := range logs {
		logViews = append(logViews, logView{
			Kind:      string(e.Kind),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		itemView
		Runs []runView `json:"runs"`
		Logs []logView `json:"logs"`
	}{toItemView(item), runViews, logViews})
}

func (s *Server) handleGetItemLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.items.Get(r.Context(), id); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	logs, err := s.logs.ListByWorkItem(r.Context(), id)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	views := make([]logView, 0, len(logs))
	for _, e := range logs {
		views = append(views, logView{
			Kind:      string(e.Kind),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	item, err := s.queue.Enqueue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	item, err := s.queue.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item))
}

func (s *Server) handlePrioritize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prioritized bool `json:"prioritized"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	item, err := s.queue.Prioritize(r.Context(), chi.URLParam(r, "id"), req.Prioritized)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item))
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	item, err := s.queue.Comment(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	item, err := s.queue.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item))
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	item, err := s.queue.Reopen(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemView(item))
}

type workspaceView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	WorkingDirMode   string `json:"workingDirMode"`
	WorkingDirPath   string `json:"workingDirPath,omitempty"`
	AutoDeleteDone   bool   `json:"autoDeleteDone"`
	RetentionDays    int    `json:"retentionDays"`
	NotifyOnError    bool   `json:"notifyOnError"`
	NotifyOnInReview bool   `json:"notifyOnInReview"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.workspaces.List(r.Context())
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	views := make([]workspaceView, 0, len(list))
	for _, ws := range list {
		views = append(views, workspaceView{
			ID:               ws.ID,
			Name:             ws.Name,
			WorkingDirMode:   string(ws.WorkingDirMode),
			WorkingDirPath:   ws.WorkingDirPath,
			AutoDeleteDone:   ws.AutoDeleteDone,
			RetentionDays:    ws.RetentionDays,
			NotifyOnError:    ws.NotifyOnError,
			NotifyOnInReview: ws.NotifyOnInReview,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspaces.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workspaceView{
		ID:               ws.ID,
		Name:             ws.Name,
		WorkingDirMode:   string(ws.WorkingDirMode),
		WorkingDirPath:   ws.WorkingDirPath,
		AutoDeleteDone:   ws.AutoDeleteDone,
		RetentionDays:    ws.RetentionDays,
		NotifyOnError:    ws.NotifyOnError,
		NotifyOnInReview: ws.NotifyOnInReview,
	})
}

type agentView struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
	CLI         string `json:"cli"`
	Position    int    `json:"position"`
}

func toAgentView(a *agent.Agent) agentView {
	return agentView{
		ID:          a.ID,
		WorkspaceID: a.WorkspaceID,
		Name:        a.Name,
		Instruction: a.Instruction,
		CLI:         string(a.CLIType),
		Position:    a.Position,
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")
	if workspaceID == "" {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "workspaceId is required", nil))
		return
	}
	agents, err := s.agents.ListByWorkspace(r.Context(), workspaceID)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, toAgentView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID string `json:"workspaceId"`
		Name        string `json:"name"`
		Instruction string `json:"instruction"`
		CLI         string `json:"cli"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	if req.Name == "" || req.CLI == "" {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "name and cli are required", nil))
		return
	}
	if _, err := s.workspaces.Get(r.Context(), req.WorkspaceID); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}

	existing, err := s.agents.ListByWorkspace(r.Context(), req.WorkspaceID)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	now := time.Now().UTC()
	a := &agent.Agent{
		ID:          ulid.Make().String(),
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		Instruction: req.Instruction,
		CLIType:     agent.CLIType(req.CLI),
		Position:    len(existing),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.agents.Create(r.Context(), a); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgentView(a))
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.agents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Instruction *string `json:"instruction"`
		CLI         *string `json:"cli"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Instruction != nil {
		a.Instruction = *req.Instruction
	}
	if req.CLI != nil {
		a.CLIType = agent.CLIType(*req.CLI)
	}
	if err := s.agents.Update(r.Context(), a); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgentView(a))
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderAgents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID string   `json:"workspaceId"`
		AgentIDs    []string `json:"agentIds"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	if err := s.agents.Reorder(r.Context(), req.WorkspaceID, req.AgentIDs); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	agents, err := s.agents.ListByWorkspace(r.Context(), req.WorkspaceID)
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	views := make([]agentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, toAgentView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSubscribePush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		cerr.WriteHTTP(w, cerr.NewError(cerr.InvalidArgument, "endpoint and keys are required", nil))
		return
	}
	err := s.subs.Upsert(r.Context(), &notifier.Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUnsubscribePush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decode(r, &req); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	if err := s.subs.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		cerr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Current())
}

func (s *Server) handleHealthRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Refresh(r.Context()))
}
