package demo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"kgrbac.org/internal/audit"
	"kgrbac.org/internal/engine"
	"kgrbac.org/internal/obs"
)

// PocPrompt is the question every scenario asks by default.
const PocPrompt = "Following the Q2 Phishing Incident reported in Alpha Fund's SOC 2 compliance summary, " +
	"what remediation measures were taken, and who from the fund's management team is " +
	"responsible for data privacy oversight?"

// Payload is the outcome of one query. Error is set only on permission denial.
type Payload struct {
	Label      string                `json:"label"`
	User       string                `json:"user"`
	Question   string                `json:"question"`
	DatasetIDs []string              `json:"dataset_ids"`
	Results    []engine.SearchResult `json:"results"`
	Error      string                `json:"error,omitempty"`
}

// Denied reports whether the engine rejected the query.
func (p Payload) Denied() bool { return p.Error != "" }

// Answer returns the first text of the first result, if there is one.
func (p Payload) Answer() (string, bool) {
	if len(p.Results) == 0 || len(p.Results[0].SearchResult) == 0 {
		return "", false
	}
	answer := strings.TrimSpace(p.Results[0].SearchResult[0])
	return answer, answer != ""
}

// RunQuery asks question as user, limited to datasetIDs when non-empty.
// A permission denial is recorded in the payload; any other failure is returned.
func (h *Harness) RunQuery(ctx context.Context, user engine.User, label, question string, datasetIDs []uuid.UUID) (Payload, error) {
	h.report().Step("[%s] -> querying as %s", label, user.Email)
	p := Payload{
		Label:      label,
		User:       user.Email,
		Question:   question,
		DatasetIDs: make([]string, 0, len(datasetIDs)),
		Results:    []engine.SearchResult{},
	}
	for _, id := range datasetIDs {
		p.DatasetIDs = append(p.DatasetIDs, id.String())
	}
	ctx = audit.WithActor(ctx, user.Email)

	results, err := h.Engine.Search(ctx, user, engine.SearchRequest{
		Type:       engine.SearchGraphCompletion,
		Query:      question,
		DatasetIDs: datasetIDs,
	})
	if errors.Is(err, engine.ErrPermissionDenied) {
		h.report().Error("Permission denied: %v", err)
		p.Error = err.Error()
		obs.ObserveQuery("denied")
		_ = audit.LogEvent(ctx, audit.EventDenied, map[string]any{"label": label, "dataset_ids": p.DatasetIDs, "error": err})
		return p, nil
	}
	if err != nil {
		obs.ObserveQuery("error")
		return p, err
	}

	if len(results) == 0 {
		h.report().Info("No context returned.")
		obs.ObserveQuery("empty")
	} else {
		p.Results = results
		for i, r := range results {
			h.report().Info("Result %d: %s", i+1, formatResult(r))
		}
		obs.ObserveQuery("ok")
	}
	_ = audit.LogEvent(ctx, audit.EventQuery, map[string]any{"label": label, "dataset_ids": p.DatasetIDs, "results": len(results)})
	return p, nil
}

func formatResult(r engine.SearchResult) string {
	text := strings.Join(r.SearchResult, " | ")
	if r.DatasetName == "" {
		return text
	}
	return r.DatasetName + ": " + text
}
