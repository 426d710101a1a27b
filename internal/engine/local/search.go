package local

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

func (e *Engine) Search(ctx context.Context, user engine.User, req engine.SearchRequest) ([]engine.SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, engine.E("search", engine.KindInvalidInput, errors.New("query text is required"))
	}
	if req.Type == "" {
		req.Type = engine.SearchGraphCompletion
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.opts.TopK
	}
	if _, err := e.store.UserByID(ctx, user.ID); err != nil {
		return nil, engine.Classify("search", err)
	}
	datasets, err := e.authorizedDatasets(ctx, user, req.DatasetIDs)
	if err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	var results []engine.SearchResult
	for _, ds := range datasets {
		passages, err := e.store.Passages(ctx, ds.ID)
		if err != nil {
			return nil, engine.Classify("search", err)
		}
		best := rankPassages(passages, terms, topK)
		if len(best) == 0 {
			continue
		}
		answer, err := e.answer(ctx, req.Type, query, best)
		if err != nil {
			return nil, err
		}
		results = append(results, engine.SearchResult{DatasetID: ds.ID, DatasetName: ds.Name, SearchResult: answer})
	}
	return results, nil
}

// authorizedDatasets resolves the search scope. Requested datasets that are
// missing or unreadable fail the whole search with permission denied.
func (e *Engine) authorizedDatasets(ctx context.Context, user engine.User, requested []uuid.UUID) ([]engine.Dataset, error) {
	p, err := e.principal(ctx, user.ID)
	if err != nil {
		return nil, engine.Classify("search", err)
	}
	ids := requested
	if len(ids) == 0 {
		ids = p.Readable()
	}
	var denied []string
	out := make([]engine.Dataset, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ds, err := e.store.DatasetByID(ctx, id)
		if errors.Is(err, engine.ErrNotFound) {
			denied = append(denied, id.String())
			continue
		}
		if err != nil {
			return nil, engine.Classify("search", err)
		}
		if e.opts.AccessControl && !p.HasPermission(id, engine.PermRead) {
			denied = append(denied, id.String())
			continue
		}
		out = append(out, ds)
	}
	if len(denied) > 0 {
		return nil, engine.E("search", engine.KindPermissionDenied,
			fmt.Errorf("user %s does not have read permission on dataset(s) %s", user.Email, strings.Join(denied, ", ")))
	}
	return out, nil
}

func (e *Engine) answer(ctx context.Context, kind engine.SearchType, query string, passages []string) ([]string, error) {
	switch kind {
	case engine.SearchChunks, engine.SearchInsights:
		return passages, nil
	case engine.SearchSummaries:
		out := make([]string, len(passages))
		for i, p := range passages {
			out[i] = firstSentence(p)
		}
		return out, nil
	}
	if e.opts.Completer == nil {
		return []string{strings.Join(passages, "\n\n")}, nil
	}
	text, err := e.opts.Completer.Generate(ctx, completionPrompt(query, passages))
	if err != nil {
		return nil, engine.E("search", engine.KindUnavailable, err)
	}
	return []string{strings.TrimSpace(text)}, nil
}

func completionPrompt(query string, passages []string) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say so.\n\nContext:\n")
	b.WriteString(strings.Join(passages, "\n\n---\n\n"))
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:\n")
	return b.String()
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "by": {}, "for": {}, "from": {},
	"in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {}, "s": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "what": {}, "which": {}, "who": {}, "with": {},
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func queryTerms(query string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, tok := range tokenize(query) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		terms[tok] = struct{}{}
	}
	return terms
}

// rankPassages keeps passages sharing at least one term with the query,
// ordered by distinct-term overlap then original position.
func rankPassages(passages []string, terms map[string]struct{}, k int) []string {
	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, p := range passages {
		matched := make(map[string]struct{})
		for _, tok := range tokenize(p) {
			if _, ok := terms[tok]; ok {
				matched[tok] = struct{}{}
			}
		}
		if len(matched) > 0 {
			hits = append(hits, scored{idx: i, score: len(matched)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = strings.TrimSpace(passages[h.idx])
	}
	return out
}

func firstSentence(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, ".!?"); i >= 0 {
		return p[:i+1]
	}
	return p
}
