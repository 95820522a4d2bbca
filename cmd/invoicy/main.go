package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/invoicy-app/invoicy/internal/artifact"
	"github.com/invoicy-app/invoicy/internal/common"
	"github.com/invoicy-app/invoicy/internal/export"
	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/llm/gemini"
	"github.com/invoicy-app/invoicy/internal/llm/openai"
	"github.com/invoicy-app/invoicy/internal/ocr"
	"github.com/invoicy-app/invoicy/internal/pipeline"
	"github.com/invoicy-app/invoicy/internal/raster"
	"github.com/invoicy-app/invoicy/internal/store"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// fatal logs the failure as a structured record carrying the full error
// chain, then exits. Logs go to stderr, so this is the machine-readable
// failure payload.
func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "trace", common.ErrorChain(err))
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func main() {
	cfg := common.LoadConfig()

	var (
		in       = flag.String("in", "", "input file or directory to process (required)")
		out      = flag.String("out", cfg.Pipeline.OutputDir, "directory for per-run artifacts")
		schema   = flag.String("schema", cfg.Pipeline.SchemaPath, "path to an invoice JSON Schema (optional, built-in default)")
		xlsxOut  = flag.String("xlsx", "", "write consolidated invoices to this XLSX file (optional)")
		dbPath   = flag.String("db", cfg.Store.DBPath, "SQLite database for run history (optional)")
		workers  = flag.Int("workers", cfg.Pipeline.Workers, "number of concurrent page workers")
		provider = flag.String("provider", cfg.LLM.Provider, "llm provider: openai or gemini")
	)
	flag.Parse()

	if *in == "" {
		printError("Error: --in is required\n")
		os.Exit(1)
	}
	cfg.Pipeline.OutputDir = *out
	cfg.Pipeline.SchemaPath = *schema
	cfg.Pipeline.Workers = *workers
	cfg.Store.DBPath = *dbPath
	cfg.LLM.Provider = *provider

	// Logs go to stderr; stdout carries progress markers and the result.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx := context.Background()
	runID := uuid.NewString()
	started := time.Now()

	invoiceSchema, err := loadSchema(cfg.Pipeline.SchemaPath)
	if err != nil {
		fatal(logger, "failed to load schema", err)
	}

	completer, cleanup, err := newCompleter(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "failed to create llm client", err)
	}
	defer cleanup()

	runRoot := filepath.Join(cfg.Pipeline.OutputDir, runID)
	sink, err := artifact.NewDirSink(runRoot, logger)
	if err != nil {
		fatal(logger, "failed to create artifact directory", err)
	}

	engine := ocr.NewTesseract(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.TesseractLang,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
	}, logger)

	proc := pipeline.NewProcessor(
		raster.New(filepath.Join(runRoot, "pages"), logger),
		pipeline.NewTextStage(engine, sink, logger),
		pipeline.NewParseStage(completer, invoiceSchema, sink, logger),
		cfg.Pipeline.Workers,
		logger)

	logger.Info("run starting", "run_id", runID, "input", *in, "provider", cfg.LLM.Provider)

	summary, err := proc.Run(ctx, *in, func(step string) {
		fmt.Println(step)
	})
	if err != nil {
		fatal(logger, "run failed", err, "run_id", runID)
	}

	if cfg.Store.DBPath != "" {
		if err := saveRun(ctx, cfg.Store.DBPath, runID, *in, started, summary, logger); err != nil {
			logger.Error("failed to save run history", "run_id", runID, "error", err)
		}
	}

	if *xlsxOut != "" {
		b, err := export.NewService(logger).InvoicesXLSX(summary.Invoices)
		if err != nil {
			fatal(logger, "failed to build workbook", err)
		}
		if err := os.WriteFile(*xlsxOut, b, 0o644); err != nil {
			fatal(logger, "failed to write workbook", err, "path", *xlsxOut)
		}
		logger.Info("workbook written", "path", *xlsxOut)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		printError("Error: encoding result: %v\n", err)
		os.Exit(1)
	}

	logger.Info("run finished",
		"run_id", runID,
		"invoices", len(summary.Invoices),
		"pages", len(summary.Pages),
		"estimated_cost_usd", summary.EstimatedCostUSD,
		"duration_ms", time.Since(started).Milliseconds())
}

func loadSchema(path string) (*llm.Schema, error) {
	if path == "" {
		return llm.DefaultSchema(), nil
	}
	return llm.LoadSchema(path)
}

func newCompleter(ctx context.Context, cfg *common.Config, logger *slog.Logger) (llm.Completer, func(), error) {
	switch cfg.LLM.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:    cfg.LLM.GeminiAPIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	default:
		client := openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			RPM:         cfg.LLM.RPM,
		}, logger)
		return client, func() {}, nil
	}
}

func saveRun(ctx context.Context, dbPath, runID, input string, started time.Time, summary *pipeline.Summary, logger *slog.Logger) error {
	st, err := store.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return st.SaveRun(ctx, runID, input, started, time.Now(), summary)
}
