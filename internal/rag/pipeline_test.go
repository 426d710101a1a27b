package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// letterEmbedder embeds text as the counts of a handful of marker letters.
type letterEmbedder struct{ calls int }

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{
			float32(strings.Count(t, "a")),
			float32(strings.Count(t, "b")),
			float32(strings.Count(t, "c")),
		}
	}
	return out, nil
}

type captureGenerator struct{ prompt string }

func (g *captureGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return "  the answer \n", nil
}

func TestPipelineRetrievesNearestChunks(t *testing.T) {
	corpus := strings.Repeat("a", 10) + strings.Repeat("b", 10) + strings.Repeat("c", 10)
	gen := &captureGenerator{}
	p := &Pipeline{
		Embedder:     &letterEmbedder{},
		Generator:    gen,
		ChunkSize:    10,
		ChunkOverlap: 5,
		TopK:         2,
	}

	res, err := p.Run(context.Background(), corpus, "bbbbbbbbbb")
	require.NoError(t, err)
	require.Equal(t, "the answer", res.Answer)
	require.Equal(t, []string{"bbbbbbbbbb", "aaaaabbbbb"}, res.Chunks)
	require.Contains(t, gen.prompt, "Context:\nbbbbbbbbbb\n\n---\n\naaaaabbbbb\n")
	require.True(t, strings.HasSuffix(gen.prompt, "Question:\nbbbbbbbbbb\n\nAnswer:\n"))
}

func TestPipelineZeroOverlapWithExplicitSize(t *testing.T) {
	corpus := strings.Repeat("a", 10) + strings.Repeat("b", 10) + strings.Repeat("c", 10)
	p := &Pipeline{
		Embedder:  &letterEmbedder{},
		Generator: &captureGenerator{},
		ChunkSize: 10,
		TopK:      5,
	}

	res, err := p.Run(context.Background(), corpus, "bbbbbbbbbb")
	require.NoError(t, err)
	require.Equal(t, []string{"bbbbbbbbbb", "aaaaaaaaaa", "cccccccccc"}, res.Chunks)
}

func TestPipelineEmptyCorpus(t *testing.T) {
	p := &Pipeline{Embedder: &letterEmbedder{}, Generator: &captureGenerator{}}
	_, err := p.Run(context.Background(), " \n\n ", "q")
	require.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]string{"one", "two"}, "why?")
	require.Contains(t, prompt, "Context:\none\n\n---\n\ntwo\n\nQuestion:\nwhy?")
	require.True(t, strings.HasPrefix(prompt, "You are an analyst."))
}
