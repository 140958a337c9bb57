package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/card-scanner/internal/extraction"
	"github.com/zombor/card-scanner/internal/prefs"
	"github.com/zombor/card-scanner/internal/scan"
	"github.com/zombor/card-scanner/internal/sheets"
	"github.com/zombor/card-scanner/internal/tui"
	"github.com/zombor/card-scanner/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("card-scanner")
	var (
		frontend        = fs.StringLong("frontend", "web", "Front end: 'web' or 'tui'")
		port            = fs.IntLong("port", 8080, "HTTP server port (web front end)")
		dbPath          = fs.StringLong("db", "card-scanner.db", "Preferences database file path")
		capturePath     = fs.StringLong("captures", "./captures", "Directory for uploaded photos awaiting extraction")
		extractorType   = fs.StringLong("extractor", "gemini", "Extractor: 'gemini', 'genai' or 'ollama'")
		geminiKey       = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel     = fs.StringLong("gemini-model", extraction.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL       = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel     = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		extractTimeout  = fs.DurationLong("extract-timeout", 60*time.Second, "Maximum time for one extraction")
		extractAttempts = fs.IntLong("extract-attempts", 3, "Attempts per extraction")
		saveTimeout     = fs.DurationLong("save-timeout", 30*time.Second, "Maximum time for one save")
		saveAttempts    = fs.IntLong("save-attempts", 1, "Attempts per save; retries reuse the X-Request-ID header")
		authUser        = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass        = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logFile         = fs.StringLong("log-file", "", "Write logs to this file (tui defaults to card-scanner.log)")
		listModels      = fs.BoolLong("list-models", "List Gemini models that can read images and exit")
		_               = fs.StringLong("config", "", "Config file (optional)")
		showVersion     = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CARD_SCANNER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Get Gemini API key from flag or environment
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	if *listModels {
		if err := printModels(apiKey, *geminiModel); err != nil {
			slog.Error("Failed to list models", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logPath := *logFile
	if logPath == "" && *frontend == "tui" {
		logPath = "card-scanner.log"
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			slog.Error("Failed to open log file", "path", logPath, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	}

	// Initialize preferences
	slog.Info("Initializing preferences...", "path", *dbPath)
	store, err := prefs.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize preferences", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize extractor based on type
	var model extraction.Model
	switch *extractorType {
	case "gemini", "genai":
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "client", *extractorType, "model", *geminiModel)
		if *extractorType == "gemini" {
			model, err = extraction.NewGemini(apiKey, *geminiModel)
		} else {
			model, err = extraction.NewGenAI(apiKey, *geminiModel)
		}
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		model, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini, genai or ollama")
		os.Exit(1)
	}
	extractor := extraction.New(model, extraction.WithAttempts(*extractAttempts))
	defer extractor.Close()

	sheet := sheets.NewClient(
		sheets.WithAttempts(*saveAttempts),
		// per-attempt transport limit matches the save timeout
		sheets.WithHTTPClient(&http.Client{Timeout: *saveTimeout}),
	)

	opts := []scan.Option{
		scan.WithExtractTimeout(*extractTimeout),
		scan.WithSaveTimeout(*saveTimeout),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *frontend {
	case "web":
		slog.Info("Initializing capture storage...", "path", *capturePath)
		captures, err := scan.NewDiskCaptures(*capturePath)
		if err != nil {
			slog.Error("Failed to initialize capture storage", "error", err)
			os.Exit(1)
		}
		orch := scan.New(store, extractor, sheet, append(opts, scan.WithCaptures(captures))...)

		basicAuth := web.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		}
		err = serve(ctx, fmt.Sprintf(":%d", *port), web.NewServer(orch, captures, basicAuth))
		if err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	case "tui":
		// Photos are read where they are; the terminal never hands over a copy to delete
		orch := scan.New(store, extractor, sheet, opts...)
		if _, err := tea.NewProgram(tui.New(ctx, orch), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("Terminal UI error", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid front end", "frontend", *frontend, "valid", "web or tui")
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// serve runs the HTTP server until ctx is cancelled
func serve(ctx context.Context, addr string, server *web.Server) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// printModels lists the models that support generateContent
func printModels(apiKey, modelName string) error {
	if apiKey == "" {
		return errors.New("gemini api key is required to list models")
	}
	g, err := extraction.NewGemini(apiKey, modelName)
	if err != nil {
		return err
	}
	defer g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := g.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Printf("%s\t%s\n", m.Name, m.DisplayName)
	}
	return nil
}
