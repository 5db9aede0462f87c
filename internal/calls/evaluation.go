package calls

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// EvaluationResults maps a criterion id to its outcome. Nil when the platform sent none.
type EvaluationResults map[string]EvaluationResult

// EvaluationResult is one pass/fail quality check from the platform's analysis step.
// Keys the dashboard does not interpret are kept in Extra and written back unchanged.
type EvaluationResult struct {
	CriteriaID string
	Result     EvaluationState
	Rationale  string
	Extra      map[string]json.RawMessage
}

type EvaluationState string

const (
	EvaluationSuccess EvaluationState = "success"
	EvaluationFailure EvaluationState = "failure"
	EvaluationUnknown EvaluationState = "unknown"
)

var errEvaluationNotObject = errors.New("evaluation result must be a JSON object")

// UnmarshalJSON accepts any object. Known keys of an unexpected type stay in Extra.
func (e *EvaluationResult) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return errEvaluationNotObject
	}

	// take removes a string-valued key; values of another type stay in m.
	take := func(key string) string {
		var s string
		if raw, ok := m[key]; ok && json.Unmarshal(raw, &s) == nil {
			delete(m, key)
		}
		return s
	}

	out := EvaluationResult{
		CriteriaID: take("criteria_id"),
		Result:     EvaluationState(strings.TrimSpace(take("result"))),
		Rationale:  take("rationale"),
	}
	if len(m) > 0 {
		out.Extra = m
	}
	*e = out
	return nil
}

func (e EvaluationResult) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(e.Extra)+3)
	for k, v := range e.Extra {
		m[k] = v
	}
	put := func(key, v string) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m[key] = b
		return nil
	}
	if e.CriteriaID != "" {
		if err := put("criteria_id", e.CriteriaID); err != nil {
			return nil, err
		}
	}
	if _, kept := m["result"]; !kept || e.Result != "" {
		if err := put("result", string(e.Result)); err != nil {
			return nil, err
		}
	}
	if e.Rationale != "" {
		if err := put("rationale", e.Rationale); err != nil {
			return nil, err
		}
	}
	return json.Marshal(m)
}

// ParseEvaluationResults decodes a criteria object entry by entry. Entries that are
// not objects are dropped; the rest survive. Returns nil when nothing usable remains.
func ParseEvaluationResults(raw json.RawMessage) EvaluationResults {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	out := make(EvaluationResults, len(entries))
	for id, entry := range entries {
		var r EvaluationResult
		if err := json.Unmarshal(entry, &r); err != nil {
			continue
		}
		out[id] = r
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
