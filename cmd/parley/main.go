package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alienxp03/parley/internal/config"
	"github.com/alienxp03/parley/internal/core"
	"github.com/alienxp03/parley/internal/events"
	"github.com/alienxp03/parley/internal/export"
	"github.com/alienxp03/parley/internal/openrouter"
	"github.com/alienxp03/parley/internal/queue"
	"github.com/alienxp03/parley/internal/scheduler"
	"github.com/alienxp03/parley/internal/storage"
	"github.com/alienxp03/parley/web/handlers"
)

var (
	dbPath    string
	cfgPath   string
	appConfig *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Multi-model AI debate orchestrator",
	Long: `parley orchestrates turn-based debates between AI models via OpenRouter.

Pick a topic and a roster of models, optionally with a moderator, and watch
them argue round by round until a judge delivers the verdict.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config
		var err error
		if cfgPath != "" {
			appConfig, err = config.LoadFrom(cfgPath)
		} else {
			appConfig, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.parley/parley.db)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default: ~/.parley/config.yaml)")

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

func getStorage() (storage.Storage, error) {
	path := dbPath
	if path == "" && appConfig != nil {
		path = appConfig.Storage.Path
	}
	if path == "" {
		path = storage.DefaultDBPath()
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}

	if err := store.Initialize(); err != nil {
		return nil, err
	}

	return store, nil
}

func getClient() *openrouter.Client {
	return openrouter.New(openrouter.Config{
		BaseURL:     appConfig.OpenRouter.BaseURL,
		APIKey:      appConfig.OpenRouter.APIKey,
		HTTPReferer: appConfig.OpenRouter.HTTPReferer,
		AppTitle:    appConfig.OpenRouter.AppTitle,
		Timeout:     appConfig.OpenRouter.Timeout,
		CacheTTL:    appConfig.OpenRouter.ModelCacheTTL,
	}, nil)
}

// buildPipeline wires the worker pool, scheduler and broker for one process.
func buildPipeline(store storage.Storage) (*scheduler.Scheduler, *events.Broker, *queue.Pool) {
	broker := events.NewBroker()
	pool := queue.NewPool(appConfig.Queue.Workers)
	sched := scheduler.New(store, getClient(), broker, pool, scheduler.Config{
		DefaultJudgeModel: appConfig.Defaults.JudgeModel,
	})
	pool.SetHandler(sched.Handle)
	return sched, broker, pool
}

// ============================================================================
// NEW COMMAND
// ============================================================================

var newCmd = &cobra.Command{
	Use:   "new [topic]",
	Short: "Start a new debate",
	Long: `Create and run a new debate on the given topic.

Debater specs are "model[:name]", comma-separated.

Examples:
  parley new "Is remote work better?" --debaters openai/gpt-4o,anthropic/claude-sonnet-4
  parley new "Tabs vs spaces" -d openai/gpt-4o:Ada,x-ai/grok-3:Bram --rounds 3
  parley new "Climate policy" -d openai/gpt-4o,mistralai/mistral-large --moderator anthropic/claude-sonnet-4
  parley new "AI regulation" -d openai/gpt-4o,qwen/qwen-max --length short --intensity 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNewDebate,
}

var (
	debatersFlag    string
	moderatorFlag   string
	roundsFlag      int
	intensityFlag   int
	lengthFlag      string
	languageFlag    string
	descriptionFlag string
)

func init() {
	newCmd.Flags().StringVarP(&debatersFlag, "debaters", "d", "", "Debaters (comma-separated: model[:name],...)")
	newCmd.Flags().StringVarP(&moderatorFlag, "moderator", "m", "", "Moderator (model[:name], optional)")
	newCmd.Flags().IntVarP(&roundsFlag, "rounds", "r", 0, "Number of rounds (default from config)")
	newCmd.Flags().IntVar(&intensityFlag, "intensity", 0, "Debate intensity 1-10 (default from config)")
	newCmd.Flags().StringVar(&lengthFlag, "length", "", "Response length: very_short, short, medium, long")
	newCmd.Flags().StringVar(&languageFlag, "language", "", "Debate language (default from config)")
	newCmd.Flags().StringVar(&descriptionFlag, "description", "", "Extra context for the debate")
}

// parseParticipant parses "model[:name]" into a participant.
func parseParticipant(spec string, role core.ParticipantRole, fallbackName string) (core.Participant, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return core.Participant{}, fmt.Errorf("empty participant spec")
	}

	model := spec
	name := fallbackName

	// The model id itself contains a slash (vendor/model), so split on the
	// last colon only.
	if idx := strings.LastIndex(spec, ":"); idx != -1 {
		model = spec[:idx]
		name = spec[idx+1:]
	}
	if model == "" {
		return core.Participant{}, fmt.Errorf("invalid participant spec: %s", spec)
	}
	if name == "" {
		name = model
	}

	return core.Participant{Role: role, ModelID: model, DisplayName: name}, nil
}

func runNewDebate(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")

	if debatersFlag == "" {
		return fmt.Errorf("--debaters is required (comma-separated model[:name] specs)")
	}
	if appConfig.OpenRouter.APIKey == "" {
		return fmt.Errorf("no OpenRouter API key configured (set openrouter.api_key or OPENROUTER_API_KEY)")
	}

	var participants []core.Participant
	if moderatorFlag != "" {
		mod, err := parseParticipant(moderatorFlag, core.RoleModerator, "Moderator")
		if err != nil {
			return fmt.Errorf("invalid --moderator: %w", err)
		}
		participants = append(participants, mod)
	}
	for i, spec := range strings.Split(debatersFlag, ",") {
		p, err := parseParticipant(spec, core.RoleDebater, fmt.Sprintf("Debater %d", i+1))
		if err != nil {
			return fmt.Errorf("invalid --debaters: %w", err)
		}
		participants = append(participants, p)
	}

	rounds := roundsFlag
	if rounds <= 0 {
		rounds = appConfig.Defaults.NumRounds
	}
	intensity := intensityFlag
	if intensity <= 0 {
		intensity = appConfig.Defaults.Intensity
	}
	length := lengthFlag
	if length == "" {
		length = appConfig.Defaults.LengthPreset
	}
	language := languageFlag
	if language == "" {
		language = appConfig.Defaults.Language
	}

	store, err := getStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	debate := &core.Debate{
		ID:     core.GenerateID(),
		Title:  core.DefaultTitle(topic),
		Status: core.StatusQueued,
		Config: core.DebateConfig{
			Topic:        topic,
			Description:  descriptionFlag,
			Language:     language,
			Participants: participants,
			LengthPreset: core.LengthPreset(length),
			NumRounds:    rounds,
			Intensity:    intensity,
		},
		CreatedAt: time.Now(),
	}
	if err := store.CreateDebate(debate); err != nil {
		return fmt.Errorf("failed to create debate: %w", err)
	}

	// Display debate info
	fmt.Printf("\nDebate: %s\n", topic)
	fmt.Printf("   ID: %s\n", debate.ID)
	fmt.Printf("   Rounds: %d  Intensity: %d  Length: %s\n", rounds, intensity, length)
	fmt.Printf("   Participants (%d):\n", len(participants))
	for _, p := range participants {
		fmt.Printf("     - %s (%s, %s)\n", p.DisplayName, p.Role, p.ModelID)
	}
	fmt.Println()
	fmt.Println(strings.Repeat("-", 60))

	sched, broker, pool := buildPipeline(store)
	ch, cancelSub := broker.Subscribe(debate.ID)
	defer cancelSub()

	pool.Start()
	defer pool.Stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nInterrupted. Stopping debate...")
		store.UpdateStatus(debate.ID, core.StatusStopped)
		cancel()
	}()

	if err := sched.Begin(ctx, debate.ID); err != nil {
		return fmt.Errorf("failed to start debate: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nDebate stopped.")
			return nil
		case event := <-ch:
			if done := printEvent(event); done {
				return nil
			}
		}
	}
}

// printEvent renders one live event; it reports true once the chain is over.
func printEvent(event events.Event) bool {
	data, _ := event.Data.(map[string]any)

	switch event.Type {
	case events.TypeTurnStarted:
		fmt.Printf("\n\n%s %v\n", strings.Repeat("-", 20), data["speaker_name"])
	case events.TypeTurnDelta:
		if delta, ok := data["delta"].(string); ok {
			fmt.Print(delta)
		}
	case events.TypeDebateCompleted:
		fmt.Printf("\n\n%s\nDebate completed.\n", strings.Repeat("=", 60))
		return true
	case events.TypeChainAborted:
		fmt.Printf("\n\nDebate aborted (status: %v).\n", data["status"])
		return true
	}
	return false
}

// ============================================================================
// LIST COMMAND
// ============================================================================

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all debates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debates, err := store.ListDebates(50, 0)
		if err != nil {
			return err
		}

		if len(debates) == 0 {
			fmt.Println("No debates found. Start one with: parley new \"Your topic\" --debaters model1,model2")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOPIC\tSTATUS\tTURNS\tCREATED")

		for _, d := range debates {
			shortID := d.ID
			if len(shortID) > 8 {
				shortID = shortID[:8]
			}
			shortTopic := d.Topic
			if len(shortTopic) > 35 {
				shortTopic = shortTopic[:32] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				shortID,
				shortTopic,
				d.Status,
				d.TurnCount,
				d.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		w.Flush()

		return nil
	},
}

// ============================================================================
// SHOW COMMAND
// ============================================================================

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show debate details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debateID, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		debate, err := store.GetDebate(debateID)
		if err != nil {
			return err
		}
		turns, err := store.ListTurns(debateID)
		if err != nil {
			return err
		}

		fmt.Printf("\nDebate: %s\n", debate.Config.Topic)
		fmt.Printf("   ID: %s\n", debate.ID)
		fmt.Printf("   Status: %s\n", debate.Status)
		fmt.Printf("   Language: %s  Rounds: %d  Intensity: %d\n",
			debate.Config.Language, debate.Config.NumRounds, debate.Config.Intensity)
		for _, p := range debate.Config.Participants {
			fmt.Printf("   %s: %s (%s)\n", strings.Title(string(p.Role)), p.DisplayName, p.ModelID)
		}
		fmt.Printf("   Created: %s\n", debate.CreatedAt.Format(time.RFC3339))
		fmt.Println()

		if len(turns) > 0 {
			fmt.Println(strings.Repeat("-", 60))
			for _, turn := range turns {
				label := fmt.Sprintf("Turn %d", turn.SeqIndex+1)
				if turn.TurnType == core.TurnVerdict {
					label = "Verdict"
				}
				fmt.Printf("\n%s - %s\n", label, turn.SpeakerName)
				fmt.Println(strings.Repeat("-", 40))
				fmt.Println(turn.Text)
				if turn.Error != "" {
					fmt.Printf("[generation error: %s]\n", turn.Error)
				}
			}
		}

		return nil
	},
}

// ============================================================================
// STOP COMMAND
// ============================================================================

var stopCmd = &cobra.Command{
	Use:   "stop [id]",
	Short: "Stop a queued or running debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debateID, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		debate, err := store.GetDebate(debateID)
		if err != nil {
			return err
		}
		if debate.Status.Terminal() {
			return fmt.Errorf("debate already finished (status: %s)", debate.Status)
		}

		if err := store.UpdateStatus(debateID, core.StatusStopped); err != nil {
			return err
		}

		fmt.Printf("Stopped debate: %s\n", debateID)
		return nil
	},
}

// ============================================================================
// DELETE COMMAND
// ============================================================================

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a debate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debateID, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		if err := store.DeleteDebate(debateID); err != nil {
			return err
		}

		fmt.Printf("Deleted debate: %s\n", debateID)
		return nil
	},
}

// ============================================================================
// EXPORT COMMAND
// ============================================================================

var exportCmd = &cobra.Command{
	Use:   "export [id] [format]",
	Short: "Export debate to file",
	Long: `Export a debate to markdown, PDF, or JSON.

Examples:
  parley export abc123 markdown
  parley export abc123 pdf
  parley export abc123 json -o debate.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		debateID, err := findDebateByPrefix(store, args[0])
		if err != nil {
			return err
		}

		debate, err := store.GetDebate(debateID)
		if err != nil {
			return err
		}
		turns, err := store.ListTurns(debateID)
		if err != nil {
			return err
		}

		format := export.Format(strings.ToLower(args[1]))
		exporter, err := export.GetExporter(format)
		if err != nil {
			return err
		}

		outputPath, _ := cmd.Flags().GetString("output")
		if outputPath == "" {
			outputPath = export.GenerateFilename(debate, exporter.FileExtension())
		}

		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create file: %w", err)
		}
		defer file.Close()

		if err := exporter.Export(debate, turns, file); err != nil {
			return fmt.Errorf("failed to export: %w", err)
		}

		fmt.Printf("Exported to: %s\n", outputPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file path")
}

// ============================================================================
// MODELS COMMAND
// ============================================================================

var modelsCmd = &cobra.Command{
	Use:   "models [model-id...]",
	Short: "List or validate OpenRouter models",
	Long: `With no arguments, list the available model catalog.
With model ids as arguments, probe each one with a minimal request.

Examples:
  parley models
  parley models --free
  parley models openai/gpt-4o anthropic/claude-sonnet-4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		if len(args) > 0 {
			if appConfig.OpenRouter.APIKey == "" {
				return fmt.Errorf("no OpenRouter API key configured (set openrouter.api_key or OPENROUTER_API_KEY)")
			}
			results := client.ValidateModels(cmd.Context(), args)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSTATUS\tDETAIL")
			for _, res := range results {
				status := "FAIL"
				if res.OK {
					status = "OK"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", res.ModelID, status, res.Message)
			}
			w.Flush()
			return nil
		}

		freeOnly, _ := cmd.Flags().GetBool("free")
		models := client.ListModels(cmd.Context())
		if len(models) == 0 {
			fmt.Println("No models available (catalog fetch failed?)")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCONTEXT\tFREE")
		for _, m := range models {
			if freeOnly && !m.IsFree {
				continue
			}
			free := ""
			if m.IsFree {
				free = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ID, m.Name, m.ContextLength, free)
		}
		w.Flush()
		return nil
	},
}

func init() {
	modelsCmd.Flags().Bool("free", false, "Show only free models")
}

// ============================================================================
// CONFIG COMMAND
// ============================================================================

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Config file: %s\n\n", config.DefaultConfigPath())

		if appConfig != nil {
			fmt.Println("Current settings:")
			fmt.Printf("  OpenRouter base URL: %s\n", appConfig.OpenRouter.BaseURL)
			key := "not set"
			if appConfig.OpenRouter.APIKey != "" {
				key = "set"
			}
			fmt.Printf("  OpenRouter API key: %s\n", key)
			fmt.Printf("  Server port: %d\n", appConfig.Server.Port)
			fmt.Printf("  Queue workers: %d\n", appConfig.Queue.Workers)
			fmt.Printf("  Default language: %s\n", appConfig.Defaults.Language)
			fmt.Printf("  Default rounds: %d\n", appConfig.Defaults.NumRounds)
			fmt.Printf("  Default intensity: %d\n", appConfig.Defaults.Intensity)
			fmt.Printf("  Default length: %s\n", appConfig.Defaults.LengthPreset)
			fmt.Printf("  Default judge model: %s\n", appConfig.Defaults.JudgeModel)
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create example config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}

		example := config.GenerateExample()
		if err := os.MkdirAll(strings.TrimSuffix(path, "/config.yaml"), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(example), 0644); err != nil {
			return err
		}

		fmt.Printf("Created config at: %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// ============================================================================
// SERVE COMMAND
// ============================================================================

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") && appConfig != nil && appConfig.Server.Port != 0 {
			servePort = appConfig.Server.Port
		}

		store, err := getStorage()
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		fmt.Printf("\nStarting parley server on http://localhost:%d\n\n", servePort)
		fmt.Println("Available endpoints:")
		fmt.Printf("  POST http://localhost:%d/api/debates             - Create a debate\n", servePort)
		fmt.Printf("  GET  http://localhost:%d/api/debates             - List debates\n", servePort)
		fmt.Printf("  GET  http://localhost:%d/api/debates/:id/stream  - Live event stream\n", servePort)
		fmt.Printf("  GET  http://localhost:%d/api/models              - Model catalog\n", servePort)
		fmt.Println("\nPress Ctrl+C to stop the server")

		return startAPIServer(store, servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8184, "Server port")
}

func startAPIServer(store storage.Storage, port int) error {
	sched, broker, pool := buildPipeline(store)
	pool.Start()
	defer pool.Stop()

	h := handlers.New(store, broker, sched, getClient(), appConfig.Defaults)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Routes(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")
		server.Close()
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func findDebateByPrefix(store storage.Storage, prefix string) (string, error) {
	debates, _ := store.ListDebates(100, 0)
	for _, d := range debates {
		if strings.HasPrefix(d.ID, prefix) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("debate not found: %s", prefix)
}
