package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/invoicy-app/invoicy/internal/artifact"
	"github.com/invoicy-app/invoicy/internal/common"
	"github.com/invoicy-app/invoicy/internal/export"
	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/llm/gemini"
	"github.com/invoicy-app/invoicy/internal/llm/openai"
	"github.com/invoicy-app/invoicy/internal/ocr"
	"github.com/invoicy-app/invoicy/internal/pipeline"
	"github.com/invoicy-app/invoicy/internal/raster"
	"github.com/invoicy-app/invoicy/internal/server"
	"github.com/invoicy-app/invoicy/internal/store"
)

// fatal logs the failure as a structured record carrying the full error
// chain, then exits.
func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err, "trace", common.ErrorChain(err))
	os.Exit(1)
}

func main() {
	cfg := common.LoadConfig()

	var (
		addr    = flag.String("addr", cfg.Server.Addr, "listen address")
		dbPath  = flag.String("db", cfg.Store.DBPath, "SQLite database for run history (optional)")
		uploads = flag.String("uploads", cfg.Server.UploadDir, "directory for uploaded documents")
		schema  = flag.String("schema", cfg.Pipeline.SchemaPath, "path to an invoice JSON Schema (optional)")
	)
	flag.Parse()

	cfg.Server.Addr = *addr
	cfg.Store.DBPath = *dbPath
	cfg.Server.UploadDir = *uploads
	cfg.Pipeline.SchemaPath = *schema

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var invoiceSchema *llm.Schema
	if cfg.Pipeline.SchemaPath != "" {
		s, err := llm.LoadSchema(cfg.Pipeline.SchemaPath)
		if err != nil {
			fatal(logger, "failed to load schema", err)
		}
		invoiceSchema = s
	} else {
		invoiceSchema = llm.DefaultSchema()
	}

	var completer llm.Completer
	switch cfg.LLM.Provider {
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:    cfg.LLM.GeminiAPIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		}, logger)
		if err != nil {
			fatal(logger, "failed to create gemini client", err)
		}
		defer func() { _ = client.Close() }()
		completer = client
	default:
		completer = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			RPM:         cfg.LLM.RPM,
		}, logger)
	}

	engine := ocr.NewTesseract(ocr.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Lang:        cfg.OCR.TesseractLang,
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
		OEM:         cfg.OCR.OEM,
	}, logger)

	sink, err := artifact.NewDirSink(filepath.Join(cfg.Pipeline.OutputDir, "daemon"), logger)
	if err != nil {
		fatal(logger, "failed to create artifact directory", err)
	}

	proc := pipeline.NewProcessor(
		raster.New(filepath.Join(cfg.Pipeline.OutputDir, "daemon", "pages"), logger),
		pipeline.NewTextStage(engine, sink, logger),
		pipeline.NewParseStage(completer, invoiceSchema, sink, logger),
		cfg.Pipeline.Workers,
		logger)

	var st *store.Store
	if cfg.Store.DBPath != "" {
		st, err = store.Open(cfg.Store.DBPath, logger)
		if err != nil {
			fatal(logger, "failed to open run history database", err)
		}
		defer func() { _ = st.Close() }()
	}

	srv := server.New(proc, st, export.NewService(logger), cfg.Server.UploadDir, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listen", "addr", cfg.Server.Addr, "history", st != nil)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	case <-ctx.Done():
		logger.Info("server.shutdown.start")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			fatal(logger, "shutdown failed", err)
		}
		logger.Info("server.shutdown.ok")
	}
}
