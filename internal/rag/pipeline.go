// Package rag is the baseline retrieval pipeline: fixed-size chunks, dense
// embeddings, a flat L2 index and a single completion call.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultTopK is how many chunks are stuffed into the prompt.
const DefaultTopK = 4

// ErrEmptyCorpus is returned when there is no text to index.
var ErrEmptyCorpus = errors.New("rag: no text was extracted from data files")

// Embedder maps texts to vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator completes a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Reporter receives human-readable progress.
type Reporter interface {
	Step(format string, args ...any)
	Info(format string, args ...any)
}

type nopReporter struct{}

func (nopReporter) Step(string, ...any) {}
func (nopReporter) Info(string, ...any) {}

// Pipeline wires the baseline stages. A zero ChunkSize selects both chunk
// defaults; once ChunkSize is set, ChunkOverlap is used as given, so zero
// means no overlap. A zero TopK selects DefaultTopK.
type Pipeline struct {
	Embedder  Embedder
	Generator Generator
	Reporter  Reporter

	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Result holds the retrieved chunks in rank order and the generated answer.
type Result struct {
	Chunks []string
	Answer string
}

func (p *Pipeline) reporter() Reporter {
	if p.Reporter == nil {
		return nopReporter{}
	}
	return p.Reporter
}

func (p *Pipeline) sizes() (size, overlap, k int) {
	size, overlap, k = p.ChunkSize, p.ChunkOverlap, p.TopK
	if size == 0 {
		size, overlap = DefaultChunkSize, DefaultChunkOverlap
	}
	if k == 0 {
		k = DefaultTopK
	}
	return size, overlap, k
}

// Run chunks corpus, indexes it, retrieves the nearest chunks to question
// and asks the generator to answer from them.
func (p *Pipeline) Run(ctx context.Context, corpus, question string) (Result, error) {
	if strings.TrimSpace(corpus) == "" {
		return Result{}, ErrEmptyCorpus
	}
	if p.Embedder == nil || p.Generator == nil {
		return Result{}, errors.New("rag: pipeline needs an embedder and a generator")
	}
	rep := p.reporter()
	size, overlap, k := p.sizes()

	chunks, err := Chunk(corpus, size, overlap)
	if err != nil {
		return Result{}, err
	}
	rep.Info("Created %d chunks.", len(chunks))

	rep.Step("Embedding chunks and creating flat L2 index...")
	vectors, err := p.Embedder.Embed(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return Result{}, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	index := NewFlatL2(0)
	if err := index.Add(vectors...); err != nil {
		return Result{}, err
	}
	rep.Info("Index created in memory (%d vectors, dim %d).", index.Len(), index.Dim())

	rep.Step("Searching for relevant chunks for question: %q", question)
	qv, err := p.Embedder.Embed(ctx, []string{question})
	if err != nil {
		return Result{}, fmt.Errorf("embed question: %w", err)
	}
	if len(qv) != 1 {
		return Result{}, fmt.Errorf("embed question: got %d vectors", len(qv))
	}
	hits, err := index.Search(qv[0], k)
	if err != nil {
		return Result{}, err
	}
	retrieved := make([]string, len(hits))
	for i, h := range hits {
		retrieved[i] = chunks[h.ID]
	}

	rep.Step("Stuffing chunks into the completion prompt...")
	answer, err := p.Generator.Generate(ctx, BuildPrompt(retrieved, question))
	if err != nil {
		return Result{Chunks: retrieved}, fmt.Errorf("generate answer: %w", err)
	}
	return Result{Chunks: retrieved, Answer: strings.TrimSpace(answer)}, nil
}

const promptTemplate = `You are an analyst. Answer the user's question *only* using the context provided below.
If the context does not contain the answer, say so.

Context:
%s

Question:
%s

Answer:
`

// BuildPrompt joins context chunks with separators and appends the question.
func BuildPrompt(chunks []string, question string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(chunks, "\n\n---\n\n"), question)
}
