package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
	"github.com/codeyard/dispatch/pkg/cmdformat"
)

var (
	app       = kingpin.New("dispatchctl", "Task dispatch control tool")
	serverURL = app.Flag("server", "dispatchd base URL").Envar("DISPATCH_SERVER").Default("http://localhost:3200").String()
	apiKey    = app.Flag("api-key", "API key").Envar("DISPATCH_API_KEY").String()

	enqueueCmd      = app.Command("enqueue", "Enqueue a new task")
	enqueueCommand  = enqueueCmd.Arg("command", "Shell command to run").Required().String()
	enqueueRepo     = enqueueCmd.Flag("repo", "Repository path the task targets").String()
	enqueuePriority = enqueueCmd.Flag("priority", "Task priority (critical, high, normal, low)").Default("normal").String()

	listCmd = app.Command("list", "List all tasks")

	showCmd = app.Command("show", "Show task details")
	showID  = showCmd.Arg("id", "Task ID").Required().String()

	updateCmd    = app.Command("update-status", "Update task status")
	updateID     = updateCmd.Arg("id", "Task ID").Required().String()
	updateStatus = updateCmd.Arg("status", "New status").Required().String()
	updateResult = updateCmd.Flag("result", "Task result").String()

	workersCmd = app.Command("workers", "List discovered workers")

	assignCmd = app.Command("assign", "Trigger an assignment sweep")

	clearWorkersCmd = app.Command("clear-workers", "Remove all workers from the registry")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	c := newClient(*serverURL, *apiKey)

	var err error
	switch command {
	case enqueueCmd.FullCommand():
		err = runEnqueue(c)
	case listCmd.FullCommand():
		err = runList(c)
	case showCmd.FullCommand():
		err = runShow(c)
	case updateCmd.FullCommand():
		err = runUpdateStatus(c)
	case workersCmd.FullCommand():
		err = runWorkers(c)
	case assignCmd.FullCommand():
		err = runAssign(c)
	case clearWorkersCmd.FullCommand():
		err = runClearWorkers(c)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runEnqueue(c *client) error {
	t, err := c.enqueueTask(*enqueueCommand, *enqueueRepo, *enqueuePriority)
	if err != nil {
		return err
	}
	fmt.Printf("Enqueued %s (%s)\n", t.ID, t.Priority)
	return nil
}

func runList(c *client) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tWORKER\tCOMMAND")
	for _, t := range snap.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, colorTaskStatus(t.Status), t.Priority, t.WorkerID, t.Command)
	}
	return w.Flush()
}

func runShow(c *client) error {
	t, err := c.task(*showID)
	if err != nil {
		return err
	}
	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Status:    %s\n", colorTaskStatus(t.Status))
	fmt.Printf("Priority:  %s\n", t.Priority)
	fmt.Printf("Repo:      %s\n", t.RepoPath)
	fmt.Printf("Worker:    %s\n", t.WorkerID)
	fmt.Printf("Created:   %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		fmt.Printf("Started:   %s\n", t.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", t.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if t.Result != "" {
		fmt.Printf("Result:    %s\n", t.Result)
	}
	pretty, err := cmdformat.Pretty(t.Command)
	if err != nil {
		pretty = t.Command
	}
	fmt.Printf("Command:\n%s\n", pretty)
	return nil
}

func runUpdateStatus(c *client) error {
	t, err := c.updateTaskStatus(*updateID, *updateStatus, *updateResult)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", t.ID, colorTaskStatus(t.Status))
	return nil
}

func runWorkers(c *client) error {
	snap, err := c.snapshot()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tREPO\tTASK\tLAST ACTIVITY")
	for _, wk := range snap.Workers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", wk.ID, colorWorkerStatus(wk.Status), wk.RepoPath, wk.CurrentTaskID, wk.LastActivity.Format("15:04:05"))
	}
	return w.Flush()
}

func runAssign(c *client) error {
	n, err := c.triggerAssignment()
	if err != nil {
		return err
	}
	fmt.Printf("Assigned %d task(s)\n", n)
	return nil
}

func runClearWorkers(c *client) error {
	n, err := c.clearWorkers()
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d worker(s)\n", n)
	return nil
}

func colorTaskStatus(s task.Status) string {
	switch s {
	case task.StatusPending:
		return color.YellowString(string(s))
	case task.StatusAssigned, task.StatusInProgress:
		return color.CyanString(string(s))
	case task.StatusCompleted:
		return color.GreenString(string(s))
	case task.StatusFailed:
		return color.RedString(string(s))
	}
	return string(s)
}

func colorWorkerStatus(s worker.Status) string {
	switch s {
	case worker.StatusIdle:
		return color.GreenString(string(s))
	case worker.StatusBusy:
		return color.CyanString(string(s))
	case worker.StatusError:
		return color.RedString(string(s))
	case worker.StatusOffline:
		return color.HiBlackString(string(s))
	}
	return string(s)
}
