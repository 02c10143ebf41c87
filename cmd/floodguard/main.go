// Floodguard is the resilient delivery agent for the FloodGuard safety
// assistant.
//
// It accepts a user's question, enriches it with nearby evacuation
// center context, delivers it through a relay-first channel cascade
// with a direct-API fallback, streams the reply, and logs the full
// exchange to sqlite. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	floodguard serve               Start the API server
//	floodguard ask <question>      Ask a single question from the terminal
//	floodguard history [id]        List conversations or print a transcript
//	floodguard init [dir]          Initialize a working directory with defaults
//	floodguard version             Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/garrellmacarilay/floodguard-agent/internal/api"
	"github.com/garrellmacarilay/floodguard-agent/internal/assistant"
	"github.com/garrellmacarilay/floodguard-agent/internal/buildinfo"
	"github.com/garrellmacarilay/floodguard-agent/internal/channel"
	"github.com/garrellmacarilay/floodguard-agent/internal/chatlog"
	"github.com/garrellmacarilay/floodguard-agent/internal/config"
	"github.com/garrellmacarilay/floodguard-agent/internal/events"
	"github.com/garrellmacarilay/floodguard-agent/internal/geo"
	"github.com/garrellmacarilay/floodguard-agent/internal/prompts"
	"github.com/garrellmacarilay/floodguard-agent/internal/shelters"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the floodguard command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: floodguard ask [-lat <deg> -lon <deg>] <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "history":
		return runHistory(ctx, stdout, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "FloodGuard - Resilient Safety Assistant Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: floodguard [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  ask            Ask a single question from the terminal")
	fmt.Fprintln(w, "  history [id]   List conversations, or print one transcript")
	fmt.Fprintln(w, "  init [dir]     Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./floodguard.yaml, ~/.config/floodguard/floodguard.yaml,")
	fmt.Fprintln(w, "  /etc/floodguard/floodguard.yaml")
	return nil
}

// newLogger builds the structured logger used throughout the process.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig resolves and loads the configuration. Without an explicit
// -config flag a missing file is not an error; the built-in defaults
// target the Apalit deployment and work out of the box.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// buildChannels assembles the ordered channel list from config: the
// relay first, the direct API channel as fallback when a key is set.
func buildChannels(cfg *config.Config, logger *slog.Logger) []channel.Channel {
	channels := []channel.Channel{
		channel.NewRelay(cfg.Relay.URL,
			channel.WithRelayTimeout(time.Duration(cfg.Relay.TimeoutSec)*time.Second),
			channel.WithRelayLogger(logger)),
	}

	gemOpts := []channel.GeminiOption{channel.WithGeminiLogger(logger)}
	if cfg.Gemini.BaseURL != "" {
		gemOpts = append(gemOpts, channel.WithGeminiBaseURL(cfg.Gemini.BaseURL))
	}
	channels = append(channels, channel.NewGemini(
		cfg.Gemini.APIKey,
		cfg.Gemini.Model,
		prompts.SystemInstruction,
		cfg.Gemini.Temperature,
		cfg.Gemini.MaxOutputTokens,
		gemOpts...,
	))

	return channels
}

func newResolver(cfg *config.Config, provider geo.PositionProvider, logger *slog.Logger) *geo.Resolver {
	return &geo.Resolver{
		Provider:      provider,
		Fallback:      geo.Point{Lat: cfg.Region.FallbackLat, Lon: cfg.Region.FallbackLon},
		MaxDistanceKm: cfg.Region.MaxDistanceKm,
		Logger:        logger,
	}
}

// runServe handles the "floodguard serve" subcommand. It opens the
// conversation store, probes the channels, starts the API server, and
// blocks until SIGINT or SIGTERM triggers graceful shutdown.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting FloodGuard", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "region", cfg.Region.Name)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store, err := chatlog.Open(filepath.Join(cfg.DataDir, "floodguard.db"), logger)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	identity := &chatlog.FileIdentity{Path: filepath.Join(cfg.DataDir, "identity")}
	bus := events.New()
	resolver := newResolver(cfg, nil, logger)

	orch, err := assistant.New(buildChannels(cfg, logger),
		assistant.WithStore(store),
		assistant.WithIdentity(identity),
		assistant.WithBus(bus),
		assistant.WithLogger(logger),
		assistant.WithPromptBuilder(assistant.LocationPromptBuilder(resolver, shelters.Directory(), cfg.Region.RankLimit)),
	)
	if err != nil {
		return err
	}

	orch.Start(ctx)
	logger.Info("pipeline initialized", "state", orch.State().String())

	server := api.NewServer(api.Config{
		Listen:       fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		Orchestrator: orch,
		Store:        store,
		Identity:     identity,
		Bus:          bus,
		Resolver:     resolver,
		RankLimit:    cfg.Region.RankLimit,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	orch.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runAsk handles the "floodguard ask" subcommand. It runs one question
// through the full pipeline without persistence, streaming the reply to
// stdout as it arrives. Optional -lat/-lon flags supply the position;
// without them the configured regional fallback is used.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	var provider geo.PositionProvider
	var words []string
	var lat, lon float64
	var haveLat, haveLon bool

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-lat" && i+1 < len(args):
			v, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return fmt.Errorf("invalid -lat value %q", args[i+1])
			}
			lat, haveLat = v, true
			i++
		case args[i] == "-lon" && i+1 < len(args):
			v, err := strconv.ParseFloat(args[i+1], 64)
			if err != nil {
				return fmt.Errorf("invalid -lon value %q", args[i+1])
			}
			lon, haveLon = v, true
			i++
		default:
			words = append(words, args[i])
		}
	}
	if haveLat != haveLon {
		return fmt.Errorf("-lat and -lon must be given together")
	}
	if haveLat {
		provider = geo.StaticProvider(geo.Point{Lat: lat, Lon: lon})
	}
	if len(words) == 0 {
		return fmt.Errorf("usage: floodguard ask [-lat <deg> -lon <deg>] <question>")
	}
	question := strings.Join(words, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	resolver := newResolver(cfg, provider, logger)

	// One-shot question: nothing worth persisting.
	orch, err := assistant.New(buildChannels(cfg, logger),
		assistant.WithLogger(logger),
		assistant.WithPromptBuilder(assistant.LocationPromptBuilder(resolver, shelters.Directory(), cfg.Region.RankLimit)),
	)
	if err != nil {
		return err
	}

	var lastLen int
	turn, err := orch.Send(ctx, question, func(t assistant.Turn) {
		if t.Role != chatlog.RoleModel || len(t.Text) <= lastLen {
			return
		}
		fmt.Fprint(stdout, t.Text[lastLen:])
		lastLen = len(t.Text)
	})
	if err != nil {
		fmt.Fprintln(stdout, turn.Text)
		return fmt.Errorf("ask: %w", err)
	}
	if lastLen > 0 {
		fmt.Fprintln(stdout)
	}
	return nil
}

// runHistory handles the "floodguard history" subcommand. With no
// arguments it lists this installation's conversations; with a
// conversation id it prints the transcript, or writes a standalone
// HTML page when --html is given.
func runHistory(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	var conversationID string
	var asHTML bool
	for _, a := range args {
		switch a {
		case "--html":
			asHTML = true
		default:
			if conversationID != "" {
				return fmt.Errorf("usage: floodguard history [conversation-id] [--html]")
			}
			conversationID = a
		}
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := chatlog.Open(filepath.Join(cfg.DataDir, "floodguard.db"), logger)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()

	if conversationID == "" {
		identity := &chatlog.FileIdentity{Path: filepath.Join(cfg.DataDir, "identity")}
		userID, err := identity.GetOrCreate()
		if err != nil {
			return fmt.Errorf("resolve identity: %w", err)
		}
		convs, err := store.UserConversations(ctx, userID, 0)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		if len(convs) == 0 {
			fmt.Fprintln(stdout, "No conversations recorded.")
			return nil
		}
		for _, c := range convs {
			fmt.Fprintf(stdout, "%s  %s  %3d messages  %s\n",
				c.ID, c.LastActivity.Format("2006-01-02 15:04"), c.MessageCount, c.Status)
		}
		return nil
	}

	conv, err := store.Conversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	messages, err := store.ConversationHistory(ctx, conversationID, 0)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if asHTML {
		page, err := chatlog.RenderHTML(conv, messages)
		if err != nil {
			return fmt.Errorf("render transcript: %w", err)
		}
		fmt.Fprint(stdout, page)
		return nil
	}

	for _, m := range messages {
		fmt.Fprintf(stdout, "[%s] %s:\n%s\n\n", m.Timestamp.Format("15:04:05"), m.Role, m.Text)
	}
	return nil
}
