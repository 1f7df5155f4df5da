// main.go - Admin control tool for tidemark
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tidemark/internal"
	"tidemark/internal/rollups"
	"tidemark/internal/syncer"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	dateLayout             = "2006-01-02"
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// NeedsEventStore reports whether the command reads the raw event store
	NeedsEventStore() bool
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&SyncProjectCommand{},
	&SyncAllCommand{},
	&SyncYesterdayCommand{},
	&SyncTodayCommand{},
	&SyncRangeCommand{},
	&ListCommand{},
	&MigrateCommand{},
}

func main() {
	_ = godotenv.Load()
	flag.Parse()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var opts []internal.Option
	if !cmd.NeedsEventStore() {
		opts = append(opts, internal.WithoutEventStore())
	}

	app, err := internal.NewApp(opts...)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func showUsageAndExit() {
	fmt.Println("Usage: tidectl <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-12s %s\n", cmd.Name(), cmd.Description())
	}
	os.Exit(1)
}

// parseDateArg parses an optional YYYY-MM-DD argument, defaulting to today.
func parseDateArg(args []string, index int) (time.Time, error) {
	if len(args) <= index {
		return rollups.Day(time.Now().UTC()), nil
	}
	date, err := time.Parse(dateLayout, args[index])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[index])
	}
	return rollups.Day(date), nil
}

// SyncProjectCommand syncs a single project for one day
type SyncProjectCommand struct{}

func (c *SyncProjectCommand) Name() string          { return "project" }
func (c *SyncProjectCommand) Description() string   { return "Sync one project: project <id> [date]" }
func (c *SyncProjectCommand) NeedsEventStore() bool { return true }

func (c *SyncProjectCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <id> [date]", c.Name())
	}

	var projectID uint
	if _, err := fmt.Sscanf(args[0], "%d", &projectID); err != nil {
		return fmt.Errorf("invalid project id %q", args[0])
	}

	date, err := parseDateArg(args, 1)
	if err != nil {
		return err
	}

	return app.Syncer.SyncProjectData(ctx, projectID, date)
}

// SyncAllCommand sweeps all active projects for one day
type SyncAllCommand struct{}

func (c *SyncAllCommand) Name() string          { return "all" }
func (c *SyncAllCommand) Description() string   { return "Sync all active projects: all [date]" }
func (c *SyncAllCommand) NeedsEventStore() bool { return true }

func (c *SyncAllCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	date, err := parseDateArg(args, 0)
	if err != nil {
		return err
	}
	return app.Syncer.SyncAllProjects(ctx, date)
}

// SyncYesterdayCommand sweeps all active projects for yesterday
type SyncYesterdayCommand struct{}

func (c *SyncYesterdayCommand) Name() string          { return "yesterday" }
func (c *SyncYesterdayCommand) Description() string   { return "Sync all active projects for yesterday" }
func (c *SyncYesterdayCommand) NeedsEventStore() bool { return true }

func (c *SyncYesterdayCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	return app.Syncer.SyncYesterday(ctx)
}

// SyncTodayCommand sweeps all active projects for today
type SyncTodayCommand struct{}

func (c *SyncTodayCommand) Name() string          { return "today" }
func (c *SyncTodayCommand) Description() string   { return "Sync all active projects for today" }
func (c *SyncTodayCommand) NeedsEventStore() bool { return true }

func (c *SyncTodayCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	return app.Syncer.SyncToday(ctx)
}

// SyncRangeCommand sweeps all active projects for each day in a range
type SyncRangeCommand struct{}

func (c *SyncRangeCommand) Name() string          { return "range" }
func (c *SyncRangeCommand) Description() string   { return "Sync a date range: range <start> <end>" }
func (c *SyncRangeCommand) NeedsEventStore() bool { return true }

func (c *SyncRangeCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <start> <end>", c.Name())
	}

	start, err := time.Parse(dateLayout, args[0])
	if err != nil {
		return fmt.Errorf("invalid start date %q, expected YYYY-MM-DD", args[0])
	}
	end, err := time.Parse(dateLayout, args[1])
	if err != nil {
		return fmt.Errorf("invalid end date %q, expected YYYY-MM-DD", args[1])
	}

	return app.Syncer.SyncDateRange(ctx, start, end)
}

// ListCommand prints recent sync runs
type ListCommand struct{}

func (c *ListCommand) Name() string          { return "list" }
func (c *ListCommand) Description() string   { return "List recent sync runs" }
func (c *ListCommand) NeedsEventStore() bool { return false }

func (c *ListCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	logs, err := syncer.ListRecentLogs(app.DBManager.GetConnection(), 50)
	if err != nil {
		return err
	}

	if len(logs) == 0 {
		fmt.Println("No sync runs recorded")
		return nil
	}

	fmt.Printf("%-38s %-10s %-12s %-12s %-8s %s\n",
		"RUN ID", "PROJECT", "DATE", "STATUS", "RECORDS", "ERROR")
	for _, entry := range logs {
		fmt.Printf("%-38s %-10d %-12s %-12s %-8d %s\n",
			entry.RunID,
			entry.ProjectID,
			entry.Date.Format(dateLayout),
			entry.Status,
			entry.RecordsProcessed,
			entry.ErrorMessage)
	}
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string          { return "migrate" }
func (c *MigrateCommand) Description() string   { return "Run database migrations" }
func (c *MigrateCommand) NeedsEventStore() bool { return false }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	return app.DBManager.MigrateDatabase()
}
