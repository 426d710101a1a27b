package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// CognifyShape tags which variant a CognifyResult holds.
type CognifyShape int

const (
	CognifyEmpty CognifyShape = iota
	// CognifyByDataset is a JSON object keyed by dataset id.
	CognifyByDataset
	// CognifyRuns is a JSON array of run records.
	CognifyRuns
)

// RunInfo is a pipeline run record. Engines disagree on the id field name,
// so both spellings are accepted.
type RunInfo struct {
	DatasetID      string `json:"dataset_id,omitempty"`
	DatasetIDCamel string `json:"datasetId,omitempty"`
	DatasetName    string `json:"dataset_name,omitempty"`
	Status         string `json:"status,omitempty"`
}

// ID returns whichever dataset id spelling is present.
func (r RunInfo) ID() string {
	if r.DatasetID != "" {
		return r.DatasetID
	}
	return r.DatasetIDCamel
}

// DatasetEntry is one key of a by-dataset result, in document order.
type DatasetEntry struct {
	Key string
	Run RunInfo
}

// CognifyResult is the outcome of Cognify, one of two shapes.
type CognifyResult struct {
	Shape     CognifyShape
	ByDataset []DatasetEntry
	Runs      []RunInfo
}

// NewByDataset builds the keyed variant.
func NewByDataset(entries ...DatasetEntry) CognifyResult {
	return CognifyResult{Shape: CognifyByDataset, ByDataset: entries}
}

// NewRuns builds the list variant.
func NewRuns(runs ...RunInfo) CognifyResult {
	return CognifyResult{Shape: CognifyRuns, Runs: runs}
}

// FirstDatasetID returns the first dataset id in the result. For the keyed
// variant that is the first object key; for the list variant it is the id of
// the first record.
func (c CognifyResult) FirstDatasetID() (uuid.UUID, bool) {
	var raw string
	switch c.Shape {
	case CognifyByDataset:
		if len(c.ByDataset) == 0 {
			return uuid.Nil, false
		}
		raw = c.ByDataset[0].Key
	case CognifyRuns:
		if len(c.Runs) == 0 {
			return uuid.Nil, false
		}
		raw = c.Runs[0].ID()
	default:
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// DecodeCognifyResult picks the variant from the first JSON token.
// Object keys keep their document order.
func DecodeCognifyResult(data []byte) (CognifyResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return CognifyResult{}, nil
	}
	switch data[0] {
	case '{':
		entries, err := decodeOrderedObject(data)
		if err != nil {
			return CognifyResult{}, E("decode_cognify", KindInvalidInput, err)
		}
		return NewByDataset(entries...), nil
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return CognifyResult{}, E("decode_cognify", KindInvalidInput, err)
		}
		runs := make([]RunInfo, 0, len(raws))
		for _, raw := range raws {
			runs = append(runs, decodeRun(raw))
		}
		return NewRuns(runs...), nil
	default:
		return CognifyResult{}, E("decode_cognify", KindInvalidInput, fmt.Errorf("unexpected cognify payload starting with %q", data[0]))
	}
}

func decodeOrderedObject(data []byte) ([]DatasetEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var entries []DatasetEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, DatasetEntry{Key: key, Run: decodeRun(value)})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return entries, nil
}

// decodeRun is lenient: non-object values yield an empty record.
func decodeRun(raw json.RawMessage) RunInfo {
	var run RunInfo
	_ = json.Unmarshal(raw, &run)
	return run
}

// MarshalJSON writes the variant back in its wire shape.
func (c CognifyResult) MarshalJSON() ([]byte, error) {
	switch c.Shape {
	case CognifyByDataset:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, entry := range c.ByDataset {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(entry.Key)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(entry.Run)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case CognifyRuns:
		runs := c.Runs
		if runs == nil {
			runs = []RunInfo{}
		}
		return json.Marshal(runs)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON delegates to DecodeCognifyResult.
func (c *CognifyResult) UnmarshalJSON(data []byte) error {
	res, err := DecodeCognifyResult(data)
	if err != nil {
		return err
	}
	*c = res
	return nil
}
