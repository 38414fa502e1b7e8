package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/ktagawa/agentq/internal/config"
	"github.com/ktagawa/agentq/internal/daemon"
)

var (
	app    = kingpin.New("agentq", "Task and chat orchestration over AI CLI agents")
	server = app.Flag("server", "Daemon base URL").Default("http://localhost:3900").String()

	serveCmd = app.Command("serve", "Run the agentq daemon")

	createCmd       = app.Command("create", "Create a work item")
	createWorkspace = createCmd.Flag("workspace", "Workspace ID").Required().String()
	createKind      = createCmd.Flag("kind", "Item kind (task or chat)").Default("task").Enum("task", "chat")
	createBody      = createCmd.Flag("body", "Item body").String()
	createEnqueue   = createCmd.Flag("enqueue", "Enqueue immediately").Bool()
	createTitle     = createCmd.Arg("title", "Item title").Required().String()

	listCmd       = app.Command("list", "List work items")
	listWorkspace = listCmd.Flag("workspace", "Filter by workspace ID").String()

	showCmd = app.Command("show", "Show a work item with its runs and logs")
	showID  = showCmd.Arg("id", "Work item ID").Required().String()

	enqueueCmd = app.Command("enqueue", "Mark a work item eligible for processing")
	enqueueID  = enqueueCmd.Arg("id", "Work item ID").Required().String()

	cancelCmd = app.Command("cancel", "Cancel a pending or running work item")
	cancelID  = cancelCmd.Arg("id", "Work item ID").Required().String()

	prioritizeCmd = app.Command("prioritize", "Toggle queue priority on a task")
	prioritizeOff = prioritizeCmd.Flag("off", "Clear the priority flag").Bool()
	prioritizeID  = prioritizeCmd.Arg("id", "Work item ID").Required().String()

	commentCmd     = app.Command("comment", "Comment on a work item")
	commentID      = commentCmd.Arg("id", "Work item ID").Required().String()
	commentMessage = commentCmd.Arg("message", "Comment text").Required().String()

	approveCmd = app.Command("approve", "Approve a reviewed task")
	approveID  = approveCmd.Arg("id", "Work item ID").Required().String()

	reopenCmd = app.Command("reopen", "Reopen a done task")
	reopenID  = reopenCmd.Arg("id", "Work item ID").Required().String()

	agentCmd = app.Command("agent", "Agent pipeline management")

	agentListCmd       = agentCmd.Command("list", "List a workspace's agents in pipeline order")
	agentListWorkspace = agentListCmd.Flag("workspace", "Workspace ID").Required().String()

	agentAddCmd         = agentCmd.Command("add", "Append an agent to a workspace's pipeline")
	agentAddWorkspace   = agentAddCmd.Flag("workspace", "Workspace ID").Required().String()
	agentAddCLI         = agentAddCmd.Flag("cli", "CLI type").Required().Enum("claude", "gemini", "codex", "opencode")
	agentAddInstruction = agentAddCmd.Flag("instruction", "Agent instruction").String()
	agentAddName        = agentAddCmd.Arg("name", "Agent name").Required().String()

	agentReorderCmd       = agentCmd.Command("reorder", "Rewrite a workspace's pipeline order")
	agentReorderWorkspace = agentReorderCmd.Flag("workspace", "Workspace ID").Required().String()
	agentReorderIDs       = agentReorderCmd.Arg("ids", "Agent IDs in the new order").Required().Strings()

	healthCmd     = app.Command("health", "Show CLI adapter availability")
	healthRefresh = healthCmd.Flag("refresh", "Re-probe adapters before reporting").Bool()

	workspacesCmd = app.Command("workspaces", "List workspaces")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == serveCmd.FullCommand() {
		runServe()
		return
	}

	client := newAPIClient(strings.TrimSuffix(*server, "/"))
	if err := dispatch(command, client); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Run(ctx, env); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(command string, client *apiClient) error {
	switch command {
	case createCmd.FullCommand():
		var item itemView
		err := client.post("/api/items", map[string]any{
			"workspaceId": *createWorkspace,
			"kind":        *createKind,
			"title":       *createTitle,
			"body":        *createBody,
			"enqueue":     *createEnqueue,
		}, &item)
		if err != nil {
			return err
		}
		printItem(item)
		return nil

	case listCmd.FullCommand():
		path := "/api/items"
		if *listWorkspace != "" {
			path += "?workspaceId=" + *listWorkspace
		}
		var items []itemView
		if err := client.get(path, &items); err != nil {
			return err
		}
		for _, item := range items {
			fmt.Printf("%s  %-9s %-12s %s%s\n",
				item.ID, item.Kind, colorStatus(item.Status), item.Title, priorityMark(item))
		}
		return nil

	case showCmd.FullCommand():
		var detail itemDetail
		if err := client.get("/api/items/"+*showID, &detail); err != nil {
			return err
		}
		printItem(detail.itemView)
		if len(detail.Runs) > 0 {
			fmt.Println("\nRuns:")
			for _, run := range detail.Runs {
				finished := "running"
				if run.FinishedAt != nil {
					finished = run.FinishedAt.Format(time.RFC3339)
				}
				fmt.Printf("  %s  %-12s  %s\n", run.ID, run.Outcome, finished)
				if run.ErrorMessage != "" {
					color.Red("    %s", run.ErrorMessage)
				}
			}
		}
		if len(detail.Logs) > 0 {
			fmt.Println("\nLog:")
			for _, entry := range detail.Logs {
				fmt.Printf("  %s [%s] %s\n",
					entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Kind, entry.Message)
			}
		}
		return nil

	case enqueueCmd.FullCommand():
		return postItem(client, *enqueueID, "enqueue")
	case cancelCmd.FullCommand():
		return postItem(client, *cancelID, "cancel")
	case approveCmd.FullCommand():
		return postItem(client, *approveID, "approve")
	case reopenCmd.FullCommand():
		return postItem(client, *reopenID, "reopen")

	case prioritizeCmd.FullCommand():
		var item itemView
		err := client.post("/api/items/"+*prioritizeID+"/prioritize",
			map[string]any{"prioritized": !*prioritizeOff}, &item)
		if err != nil {
			return err
		}
		printItem(item)
		return nil

	case commentCmd.FullCommand():
		var item itemView
		err := client.post("/api/items/"+*commentID+"/comment",
			map[string]any{"message": *commentMessage}, &item)
		if err != nil {
			return err
		}
		printItem(item)
		return nil

	case agentListCmd.FullCommand():
		var agents []agentView
		if err := client.get("/api/agents?workspaceId="+*agentListWorkspace, &agents); err != nil {
			return err
		}
		for _, a := range agents {
			fmt.Printf("%d. %s  %s (%s)\n", a.Position+1, a.ID, a.Name, a.CLI)
		}
		return nil

	case agentAddCmd.FullCommand():
		var a agentView
		err := client.post("/api/agents", map[string]any{
			"workspaceId": *agentAddWorkspace,
			"name":        *agentAddName,
			"cli":         *agentAddCLI,
			"instruction": *agentAddInstruction,
		}, &a)
		if err != nil {
			return err
		}
		fmt.Printf("added %s at position %d\n", a.Name, a.Position+1)
		return nil

	case agentReorderCmd.FullCommand():
		var agents []agentView
		err := client.post("/api/agents/reorder", map[string]any{
			"workspaceId": *agentReorderWorkspace,
			"agentIds":    *agentReorderIDs,
		}, &agents)
		if err != nil {
			return err
		}
		for _, a := range agents {
			fmt.Printf("%d. %s (%s)\n", a.Position+1, a.Name, a.CLI)
		}
		return nil

	case healthCmd.FullCommand():
		var snap healthView
		path := "/api/health"
		if *healthRefresh {
			if err := client.post("/api/health/refresh", nil, &snap); err != nil {
				return err
			}
		} else if err := client.get(path, &snap); err != nil {
			return err
		}
		for _, det := range snap.Detections {
			if det.Available {
				color.Green("%-10s available  %s", det.CLIType, det.Version)
			} else {
				color.Red("%-10s missing    %s", det.CLIType, det.Error)
			}
		}
		if !snap.LastCheckedAt.IsZero() {
			fmt.Printf("last checked: %s\n", snap.LastCheckedAt.Format(time.RFC3339))
		}
		return nil

	case workspacesCmd.FullCommand():
		var list []workspaceView
		if err := client.get("/api/workspaces", &list); err != nil {
			return err
		}
		for _, ws := range list {
			fmt.Printf("%s  %-20s mode=%s retention=%dd\n",
				ws.ID, ws.Name, ws.WorkingDirMode, ws.RetentionDays)
		}
		return nil
	}

	return fmt.Errorf("unknown command %q", command)
}

func postItem(client *apiClient, id, action string) error {
	var item itemView
	if err := client.post("/api/items/"+id+"/"+action, struct{}{}, &item); err != nil {
		return err
	}
	printItem(item)
	return nil
}

func printItem(item itemView) {
	fmt.Printf("%s  %s  %s%s\n", item.ID, item.Kind, colorStatus(item.Status), priorityMark(item))
	fmt.Printf("  %s\n", item.Title)
	if item.Body != "" {
		fmt.Printf("  %s\n", item.Body)
	}
}

func priorityMark(item itemView) string {
	if item.Prioritized {
		return " " + color.YellowString("*")
	}
	return ""
}

func colorStatus(status string) string {
	switch status {
	case "in_progress", "queued":
		return color.CyanString(status)
	case "in_review":
		return color.YellowString(status)
	case "done", "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	default:
		return status
	}
}

type itemView struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	Prioritized bool      `json:"prioritized"`
	InFlight    bool      `json:"inFlight"`
	CreatedAt   time.Time `json:"createdAt"`
}

type itemDetail struct {
	itemView
	Runs []struct {
		ID           string     `json:"id"`
		Outcome      string     `json:"outcome"`
		FinishedAt   *time.Time `json:"finishedAt"`
		ErrorMessage string     `json:"errorMessage"`
	} `json:"runs"`
	Logs []struct {
		Kind      string    `json:"kind"`
		Message   string    `json:"message"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"logs"`
}

type agentView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	CLI      string `json:"cli"`
	Position int    `json:"position"`
}

type workspaceView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	WorkingDirMode string `json:"workingDirMode"`
	RetentionDays  int    `json:"retentionDays"`
}

type healthView struct {
	Detections []struct {
		CLIType   string `json:"CLIType"`
		Available bool   `json:"Available"`
		Version   string `json:"Version"`
		Error     string `json:"Error"`
	} `json:"detections"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}
