package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/extract"
	"kgrbac.org/internal/rag"
)

func newBaselineCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "baseline",
		Short: "Run the non-RBAC retrieval pipeline for comparison",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			out := demo.NewConsole(cmd.OutOrStdout())
			out.Info("--- Starting baseline RAG PoC (no access control) ---")

			out.Step("Step 1: Extracting text from all data sources...")
			corpus := baselineCorpus(ctx, a.cfg.DataDir, out)

			client, err := newLLM(a.cfg)
			if err != nil {
				return fail("baseline", err)
			}
			p := &rag.Pipeline{Embedder: client, Generator: client, Reporter: out}
			res, err := p.Run(ctx, corpus, demo.PocPrompt)
			if errors.Is(err, rag.ErrEmptyCorpus) {
				out.Error("ERROR: No text was extracted from data files. Exiting.")
				return nil
			}

			if len(res.Chunks) > 0 {
				out.Step("--- Raw Retrieved Chunks ---")
				out.Info("This is what the baseline system found (it's fragmented):")
				for i, chunk := range res.Chunks {
					out.Info("\n[Chunk %d]:\n%s", i+1, strings.TrimSpace(chunk))
				}
			}
			if err != nil {
				out.Error("   ERROR: %v", err)
				return nil
			}
			out.Step("--- Baseline RAG Answer ---")
			out.Info("%s", res.Answer)
			return nil
		},
	}
}

// baselineCorpus joins the PDF text and the fund_managers table, blank-line separated.
func baselineCorpus(ctx context.Context, dir string, out demo.Reporter) string {
	out.Info("   Extracting text from PDFs...")
	pdfText := extract.PDFCorpus([]string{
		filepath.Join(dir, "demo_ddq.pdf"),
		filepath.Join(dir, "demo_soc2.pdf"),
	}, out.Warn)
	db := filepath.Join(dir, "alpha_fund_data.db")
	out.Info("   Extracting text from: %s...", filepath.Base(db))
	return pdfText + "\n\n" + extract.SQLTableOrWarn(ctx, db, "fund_managers", out.Warn)
}
