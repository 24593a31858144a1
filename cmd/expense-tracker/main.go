package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/scanning"
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

	// A missing .env file is fine; flags and the environment still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	flags := ff.NewFlagSet("expense-tracker")
	var (
		port         = flags.IntLong("port", 8080, "HTTP server port")
		dbPath       = flags.StringLong("db", "expense-tracker.db", "Database file path")
		storagePath  = flags.StringLong("storage", "./receipts", "Receipt image directory")
		backend      = flags.StringLong("backend", "rest", "Gemini backend: 'rest' or 'sdk'")
		geminiKey    = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = flags.StringLong("gemini-model", scanning.DefaultModel, "Google Gemini model name")
		geminiURL    = flags.StringLong("gemini-url", scanning.DefaultBaseURL, "Gemini API base URL (rest backend)")
		scanTimeout  = flags.IntLong("scan-timeout", int(scanning.DefaultTimeout/time.Second), "Receipt scan timeout in seconds")
		convertMedia = flags.BoolLong("convert-media", "Convert HEIC/HEIF images and PDFs to PNG before scanning")
		authUser     = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	slog.Info("Initializing database...", "path", *dbPath)
	db, err := expense.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	timeout := time.Duration(*scanTimeout) * time.Second

	// scanner stays nil when no key is configured; scans then report 503.
	var scanner scanning.Scanner
	if apiKey == "" {
		slog.Warn("Gemini API key not set, receipt scanning is disabled. Set --gemini-key or GEMINI_API_KEY")
	} else {
		transport, err := newTransport(*backend, apiKey, *geminiModel, *geminiURL, timeout)
		if err != nil {
			slog.Error("Failed to initialize scanner", "backend", *backend, "error", err)
			os.Exit(1)
		}
		slog.Info("Initialized scanner", "backend", *backend, "model", *geminiModel, "convert_media", *convertMedia)
		extractor := scanning.NewExtractor(transport, scanning.NewMediaEncoder(*convertMedia))
		defer extractor.Close()
		scanner = extractor
	}

	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := expense.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	service := expense.NewService(db, scanner, store)
	if _, err := service.ListCategories(); err != nil {
		slog.Error("Failed to load categories", "error", err)
		os.Exit(1)
	}

	basicAuth := expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := expense.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

func newTransport(backend, apiKey, model, baseURL string, timeout time.Duration) (scanning.Transport, error) {
	switch backend {
	case "rest":
		return scanning.NewClient(scanning.ClientConfig{
			APIKey:     apiKey,
			Model:      model,
			BaseURL:    baseURL,
			HTTPClient: &http.Client{Timeout: timeout},
		})
	case "sdk":
		sdk, err := scanning.NewGeminiSDK(context.Background(), apiKey, model)
		if err != nil {
			return nil, err
		}
		sdk.Timeout = timeout
		return sdk, nil
	default:
		return nil, fmt.Errorf("unknown backend %q, valid: rest or sdk", backend)
	}
}
