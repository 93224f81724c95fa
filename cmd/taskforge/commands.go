package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/taskforge/internal/config"
	"github.com/hochfrequenz/taskforge/internal/domain"
	"github.com/hochfrequenz/taskforge/internal/executor"
	"github.com/hochfrequenz/taskforge/internal/janitor"
	"github.com/hochfrequenz/taskforge/internal/notify"
	"github.com/hochfrequenz/taskforge/internal/orchestrator"
	"github.com/hochfrequenz/taskforge/internal/policy"
	"github.com/hochfrequenz/taskforge/internal/prompts"
	"github.com/hochfrequenz/taskforge/internal/provider"
	"github.com/hochfrequenz/taskforge/internal/runstore"
	"github.com/hochfrequenz/taskforge/internal/schema"
	"github.com/hochfrequenz/taskforge/internal/workspace"
	"github.com/hochfrequenz/taskforge/tui"
	"github.com/hochfrequenz/taskforge/web/api"
)

var version = "dev"

var (
	servePort     int
	runDryRun     bool
	runMaxActions int
	historyLimit  int
	dashboardURL  string
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run PROMPT",
		Short: "Execute a single task and print the report",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnce,
	}
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "plan and validate without executing")
	runCmd.Flags().IntVar(&runMaxActions, "max-actions", 0, "cap the plan size for this run")
	rootCmd.AddCommand(runCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show run counts and workspace usage",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print the full report of a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	// dashboard command
	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Launch the terminal dashboard",
		RunE:  runDashboard,
	}
	dashboardCmd.Flags().StringVar(&dashboardURL, "url", "", "server base URL (default from config)")
	rootCmd.AddCommand(dashboardCmd)

	// version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskforge %s\n", version)
		},
	}
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// pipeline bundles everything the serve and run commands share
type pipeline struct {
	cfg   *config.Config
	store *runstore.Store
	ws    *workspace.Workspace
	pol   *policy.Policy
	orch  *orchestrator.Orchestrator
}

func (p *pipeline) Close() {
	p.store.Close()
}

func buildPipeline(cfg *config.Config) (*pipeline, error) {
	if err := os.MkdirAll(cfg.General.WorkspaceRoot, 0o755); err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("database dir: %w", err)
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(cfg.General.WorkspaceRoot)
	if err != nil {
		store.Close()
		return nil, err
	}

	pol, err := policy.Load(cfg.Policy.PolicyPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("policy: %w", err)
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		store.Close()
		return nil, fmt.Errorf("no API key in environment for provider %q", cfg.Provider.Name)
	}

	prov, err := provider.New(provider.Config{
		Name:      cfg.Provider.Name,
		Model:     cfg.Provider.Model,
		APIKey:    apiKey,
		MaxTokens: cfg.Provider.MaxTokens,
		Timeout:   time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		Limits: schema.Limits{
			MaxActions:    pol.MaxActions,
			MaxWriteBytes: pol.MaxWriteBytes,
		},
	}, prompts.DefaultLoader())
	if err != nil {
		store.Close()
		return nil, err
	}

	exec := executor.New(ws, pol)
	exec.SetDebug(cfg.General.Debug)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notifications.SlackWebhook != "" {
		notifier = notify.NewSlackNotifier(cfg.Notifications.SlackWebhook)
	}

	orch := orchestrator.New(prov, pol, ws, exec, store, notifier, orchestrator.Options{
		MaxPromptLength: cfg.Policy.MaxPromptLength,
		MaxRetries:      cfg.Policy.MaxRetries,
	})

	return &pipeline{cfg: cfg, store: store, ws: ws, pol: pol, orch: orch}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	server := api.NewServer(p.store, p.orch, p.ws, addr)

	p.orch.OnRunUpdate = func(report *domain.RunReport) {
		server.Broadcast(api.RunEvent(report))
	}

	watcher, err := workspace.NewWatcher(p.ws, func(changed []string) {
		server.Broadcast(api.WorkspaceEvent(changed))
	})
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()

	jan, err := janitor.New(janitor.Config{
		Cron:   cfg.Retention.Cron,
		MaxAge: time.Duration(cfg.Retention.MaxDays) * 24 * time.Hour,
	}, p.store)
	if err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	jan.Start()
	defer jan.Stop()

	log.Printf("[serve] listening on http://%s (workspace %s)", addr, p.ws.Root())
	return server.Start()
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	report := p.orch.Run(context.Background(), orchestrator.Request{
		Prompt:     args[0],
		MaxActions: runMaxActions,
		DryRun:     runDryRun,
	})

	printReport(report)
	if report.Status != domain.RunCompleted {
		os.Exit(1)
	}
	return nil
}

func printReport(report *domain.RunReport) {
	fmt.Printf("Run %s: %s (%s)\n", report.ID, report.Status, report.Duration().Round(time.Millisecond))
	if report.Error != "" {
		fmt.Printf("  error: %s\n", report.Error)
	}
	for _, r := range report.Rejections {
		fmt.Printf("  rejected: %s\n", r)
	}
	if report.Plan != nil && report.Plan.Analysis != "" {
		fmt.Printf("  analysis: %s\n", report.Plan.Analysis)
	}
	for _, res := range report.Results {
		fmt.Printf("  [%s] %s", res.Status, res.Kind)
		if res.Error != "" {
			fmt.Printf(": %s", res.Error)
		}
		fmt.Println()
		if res.Output != "" {
			fmt.Printf("    %s\n", res.Output)
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.CountRuns()
	if err != nil {
		return err
	}

	var total int
	for _, n := range counts {
		total += n
	}
	fmt.Printf("Runs: %d total | %d completed | %d partial | %d failed | %d aborted | %d provider errors | %d invalid\n",
		total,
		counts[domain.RunCompleted],
		counts[domain.RunPartial],
		counts[domain.RunFailed],
		counts[domain.RunAborted],
		counts[domain.RunProviderError],
		counts[domain.RunInvalid])

	if ws, err := workspace.New(cfg.General.WorkspaceRoot); err == nil {
		files, _ := ws.List()
		size, _ := ws.TotalSize()
		fmt.Printf("Workspace: %d files, %d bytes at %s\n", len(files), size, ws.Root())
	}

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tRETRIES\tPROMPT")
	for _, r := range runs {
		prompt := r.Prompt
		if len(prompt) > 60 {
			prompt = prompt[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Retries, prompt)
	}
	w.Flush()

	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.GetRun(args[0])
	if err != nil {
		return err
	}
	if report == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	return nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := dashboardURL
	if url == "" {
		url = fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port)
	}

	p := tea.NewProgram(tui.NewModel(url), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
