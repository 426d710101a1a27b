// Package graphpoc runs the single-tenant proof of concept: documents and a
// relational database go into one dataset, which is then searched once.
package graphpoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kgrbac.org/internal/config"
	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/extract"
)

// Dataset receives every source.
const Dataset = "main_dataset"

// SearchTopK is the result budget for the final search.
const SearchTopK = 50

// Question is the PoC query.
const Question = "Following the Q2 Phishing Incident reported in Alpha Fund’s SOC 2 compliance summary, " +
	"what remediation measures were taken, and who from the fund’s management team is " +
	"responsible for data privacy oversight?"

// DefaultUser owns the PoC dataset.
var DefaultUser = engine.NewUser{Email: "default_user@kgrbac.demo", Password: "default-pass", IsVerified: true, IsActive: true}

// Reporter receives progress lines.
type Reporter interface {
	Step(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// StepError names the step that aborted the run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

// ErrUnsupportedProvider is returned for migration sources other than sqlite.
var ErrUnsupportedProvider = errors.New("unsupported migration provider")

// Runner holds the PoC inputs.
type Runner struct {
	Engine    engine.Engine
	Reporter  Reporter
	DataDir   string
	Migration config.MigrationSource
	// LoadText reads a document. Defaults to extract.PDFText.
	LoadText func(path string) (string, error)
}

func (r *Runner) loadText(path string) (string, error) {
	if r.LoadText != nil {
		return r.LoadText(path)
	}
	return extract.PDFText(path)
}

// Documents lists the PDF sources under DataDir.
func (r *Runner) Documents() []string {
	return []string{
		filepath.Join(r.DataDir, "demo_ddq.pdf"),
		filepath.Join(r.DataDir, "demo_soc2.pdf"),
	}
}

// Run executes every step in order. A failing step is reported and ends the
// run with a *StepError; a missing database ends it early with no error.
func (r *Runner) Run(ctx context.Context) ([]engine.SearchResult, error) {
	rep := r.Reporter
	rep.Info("--- Starting graph PoC (PDF + SQL) ---")

	rep.Step("1. Pruning existing data (if any)...")
	if err := r.Engine.Prune(ctx); err != nil {
		rep.Warn("   Cleanup failed or not needed: %v", err)
	} else {
		rep.Info("   Cleanup complete.")
	}

	rep.Step("2. Setting up the PoC user...")
	user, err := r.Engine.CreateUser(ctx, DefaultUser)
	if errors.Is(err, engine.ErrAlreadyExists) {
		user, err = r.Engine.UserByEmail(ctx, DefaultUser.Email)
	}
	if err != nil {
		return nil, r.fail("setup", err)
	}
	rep.Info("   User ready: %s", user.Email)

	rep.Step("3. Adding file data sources (PDFs)...")
	var docs []string
	for _, path := range r.Documents() {
		text, err := r.loadText(path)
		if errors.Is(err, extract.ErrSourceNotFound) {
			rep.Warn("   WARNING: File not found - %s", path)
			continue
		}
		if err != nil {
			rep.Warn("   WARNING: could not read %s: %v", path, err)
			continue
		}
		docs = append(docs, text)
		rep.Info("   Added file: %s", filepath.Base(path))
	}

	src := r.Migration
	if src.Name == "" {
		src.Name = "alpha_fund_data.db"
	}
	if src.Path == "" {
		src.Path = r.DataDir
	}
	rep.Step("4. Migrating SQL database (%s)...", src.Name)
	if _, err := os.Stat(src.File()); err != nil {
		rep.Warn("   WARNING: Database file not found - %s", src.File())
		return nil, nil
	}
	if p := strings.ToLower(src.Provider); p != "" && p != "sqlite" {
		return nil, r.fail("migrate", fmt.Errorf("%w: %s", ErrUnsupportedProvider, src.Provider))
	}
	tables, order, err := extract.SQLTables(ctx, src.File())
	if err != nil {
		return nil, r.fail("migrate", err)
	}
	for _, name := range order {
		docs = append(docs, tables[name])
	}
	if len(docs) == 0 {
		return nil, r.fail("migrate", errors.New("no documents or tables to add"))
	}
	if err := r.Engine.Add(ctx, user, Dataset, docs); err != nil {
		return nil, r.fail("migrate", err)
	}
	rep.Info("   SQL database migration complete (%d tables).", len(order))

	rep.Step("5. Running cognify...")
	if _, err := r.Engine.Cognify(ctx, user, []string{Dataset}); err != nil {
		return nil, r.fail("cognify", err)
	}
	rep.Info("   Cognify complete.")

	rep.Step("6. Searching the unified graph with question:\n   %s", Question)
	results, err := r.Engine.Search(ctx, user, engine.SearchRequest{
		Type:  engine.SearchGraphCompletion,
		Query: Question,
		TopK:  SearchTopK,
	})
	if err != nil {
		return nil, r.fail("search", err)
	}
	rep.Info("\n--- Search Results ---")
	if len(results) == 0 {
		rep.Info("   No results found.")
	}
	for _, res := range results {
		for _, text := range res.SearchResult {
			rep.Info("%s", text)
		}
	}
	rep.Info("\n--- Graph PoC Finished ---")
	return results, nil
}

func (r *Runner) fail(step string, err error) error {
	r.Reporter.Error("   ERROR during %s: %v", step, err)
	return &StepError{Step: step, Err: err}
}
