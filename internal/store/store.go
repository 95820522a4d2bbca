// Package store keeps a history of pipeline runs in SQLite so past
// extractions can be listed and re-exported without re-running OCR.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/invoicy-app/invoicy/internal/llm"
	"github.com/invoicy-app/invoicy/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	input_path        TEXT NOT NULL,
	started_at        TIMESTAMP NOT NULL,
	finished_at       TIMESTAMP NOT NULL,
	pages             INTEGER NOT NULL,
	invoices          INTEGER NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	cost_usd          REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS invoices (
	run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	invoice_number  TEXT NOT NULL,
	page_count      INTEGER NOT NULL,
	avg_confidence  REAL NOT NULL,
	fields_json     TEXT NOT NULL,
	extracted_text  TEXT NOT NULL,
	PRIMARY KEY (run_id, invoice_number)
);
`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the run-history database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RunSummary is one row of run history.
type RunSummary struct {
	ID               string    `json:"id"`
	InputPath        string    `json:"input_path"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Pages            int       `json:"pages"`
	Invoices         int       `json:"invoices"`
	Usage            llm.Usage `json:"token_usage"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
}

// SaveRun records a finished pipeline run and its consolidated invoices.
func (s *Store) SaveRun(ctx context.Context, runID, inputPath string, startedAt, finishedAt time.Time, sum *pipeline.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, input_path, started_at, finished_at, pages, invoices, prompt_tokens, completion_tokens, cost_usd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, inputPath, startedAt.UTC(), finishedAt.UTC(),
		len(sum.Pages), len(sum.Invoices),
		sum.Usage.PromptTokens, sum.Usage.CompletionTokens, sum.EstimatedCostUSD,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for num, rec := range sum.Invoices {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields for %q: %w", num, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoices (run_id, invoice_number, page_count, avg_confidence, fields_json, extracted_text)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, num, rec.PageCount, rec.AverageConfidence, string(fields), rec.Text,
		)
		if err != nil {
			return fmt.Errorf("insert invoice %q: %w", num, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("store.run.saved", "run_id", runID, "invoices", len(sum.Invoices))
	return nil
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_path, started_at, finished_at, pages, invoices, prompt_tokens, completion_tokens, cost_usd
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.InputPath, &r.StartedAt, &r.FinishedAt,
			&r.Pages, &r.Invoices, &r.Usage.PromptTokens, &r.Usage.CompletionTokens,
			&r.EstimatedCostUSD); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Invoices returns the consolidated records saved for one run.
func (s *Store) Invoices(ctx context.Context, runID string) (map[string]*pipeline.InvoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT invoice_number, page_count, avg_confidence, fields_json, extracted_text
		 FROM invoices WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*pipeline.InvoiceRecord)
	for rows.Next() {
		var rec pipeline.InvoiceRecord
		var fields string
		if err := rows.Scan(&rec.InvoiceNumber, &rec.PageCount, &rec.AverageConfidence, &fields, &rec.Text); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields for %q: %w", rec.InvoiceNumber, err)
		}
		out[rec.InvoiceNumber] = &rec
	}
	return out, rows.Err()
}
