package webhook

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/calls"
)

// Shape identifies which payload layout a webhook body uses.
type Shape string

const (
	ShapeFlat   Shape = "flat"
	ShapeNested Shape = "nested"
)

const (
	msgMissingFields = "Missing required fields: conversation_id or transcript"
	msgInvalidJSON   = "Invalid JSON payload"
)

// nestedPayload is the post-call layout: everything of interest lives under "data".
type nestedPayload struct {
	Type           string          `json:"type"`
	EventTimestamp json.RawMessage `json:"event_timestamp"`
	Data           struct {
		AgentID        json.RawMessage `json:"agent_id"`
		ConversationID json.RawMessage `json:"conversation_id"`
		Metadata       struct {
			CallDurationSecs json.RawMessage `json:"call_duration_secs"`
		} `json:"metadata"`
		Transcript json.RawMessage `json:"transcript"`
		Analysis   struct {
			TranscriptSummary         string          `json:"transcript_summary"`
			EvaluationCriteriaResults json.RawMessage `json:"evaluation_criteria_results"`
		} `json:"analysis"`
		ConversationInitiationClientData struct {
			DynamicVariables map[string]json.RawMessage `json:"dynamic_variables"`
		} `json:"conversation_initiation_client_data"`
	} `json:"data"`
}

// flatPayload carries the record fields at the top level.
type flatPayload struct {
	CallID            json.RawMessage `json:"call_id"`
	AgentID           json.RawMessage `json:"agent_id"`
	CallerNumber      json.RawMessage `json:"caller_number"`
	Transcript        json.RawMessage `json:"transcript"`
	Timestamp         json.RawMessage `json:"timestamp"`
	Duration          json.RawMessage `json:"duration"`
	EvaluationResults json.RawMessage `json:"evaluation_results"`
}

// Normalizer maps either payload shape onto calls.Record.
type Normalizer struct {
	Now   func() time.Time
	NewID func() string
}

// DetectShape looks for a "data" object. Anything else is treated as flat.
func DetectShape(body []byte) (Shape, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return "", apperrors.Validation(msgInvalidJSON)
	}
	if raw, ok := top["data"]; ok {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '{' {
			return ShapeNested, nil
		}
	}
	return ShapeFlat, nil
}

// Normalize decodes body and returns the canonical record.
// The only hard rejection is a missing id or transcript.
func (n Normalizer) Normalize(body []byte) (calls.Record, Shape, error) {
	if n.Now == nil {
		n.Now = time.Now
	}
	if n.NewID == nil {
		n.NewID = calls.NewID
	}

	shape, err := DetectShape(body)
	if err != nil {
		return calls.Record{}, "", err
	}

	var rec calls.Record
	switch shape {
	case ShapeNested:
		rec, err = n.nested(body)
	default:
		rec, err = n.flat(body)
	}
	if err != nil {
		return calls.Record{}, shape, err
	}
	return rec, shape, nil
}

func (n Normalizer) nested(body []byte) (calls.Record, error) {
	var p nestedPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return calls.Record{}, apperrors.Validation(msgInvalidJSON)
	}
	now := n.Now().UTC()

	transcript := JoinTurns(p.Data.Transcript)
	if transcript == "" {
		transcript = strings.TrimSpace(p.Data.Analysis.TranscriptSummary)
	}
	id := rawString(p.Data.ConversationID)
	if id == "" || transcript == "" {
		return calls.Record{}, apperrors.Validation(msgMissingFields)
	}

	caller := rawString(p.Data.ConversationInitiationClientData.DynamicVariables["caller_id"])
	agent := rawString(p.Data.AgentID)
	if agent == "" {
		agent = rawString(p.Data.ConversationInitiationClientData.DynamicVariables["agent_id"])
	}

	ts, ok := parseTime(p.EventTimestamp)
	if !ok {
		ts = now
	}

	return calls.Record{
		ID:                id,
		AgentID:           orDefault(agent, calls.UnknownAgent),
		CallerNumber:      orDefault(caller, calls.UnknownCaller),
		Transcript:        transcript,
		Timestamp:         ts,
		Duration:          parseSeconds(p.Data.Metadata.CallDurationSecs),
		ProcessedAt:       now,
		EvaluationResults: calls.ParseEvaluationResults(p.Data.Analysis.EvaluationCriteriaResults),
	}, nil
}

func (n Normalizer) flat(body []byte) (calls.Record, error) {
	var p flatPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return calls.Record{}, apperrors.Validation(msgInvalidJSON)
	}
	now := n.Now().UTC()

	transcript := strings.TrimSpace(rawString(p.Transcript))
	if transcript == "" {
		transcript = JoinTurns(p.Transcript)
	}
	if transcript == "" {
		return calls.Record{}, apperrors.Validation(msgMissingFields)
	}

	id := rawString(p.CallID)
	if id == "" {
		id = n.NewID()
	}

	ts, ok := parseTime(p.Timestamp)
	if !ok {
		ts = now
	}

	return calls.Record{
		ID:                id,
		AgentID:           orDefault(rawString(p.AgentID), calls.UnknownAgent),
		CallerNumber:      orDefault(rawString(p.CallerNumber), calls.UnknownCaller),
		Transcript:        transcript,
		Timestamp:         ts,
		Duration:          parseSeconds(p.Duration),
		ProcessedAt:       now,
		EvaluationResults: calls.ParseEvaluationResults(p.EvaluationResults),
	}, nil
}

var (
	textKeys    = []string{"text", "message", "content", "transcript", "value"}
	speakerKeys = []string{"speaker", "role"}
)

// JoinTurns renders a transcript turn array as one "speaker: text" line per turn,
// in order. Turns without text are skipped. Anything that is not an array yields "".
func JoinTurns(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return ""
	}
	var turns []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &turns); err != nil {
		return ""
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		text := firstString(t, textKeys)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if speaker := firstString(t, speakerKeys); speaker != "" {
			lines = append(lines, speaker+": "+text)
			continue
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}

func firstString(m map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if s := rawString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// rawString returns a JSON string or number as text; other kinds yield "".
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw)
	default:
		return ""
	}
}

// parseTime accepts epoch seconds (number or numeric string) or an RFC 3339 string.
func parseTime(raw json.RawMessage) (time.Time, bool) {
	s := rawString(raw)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f <= 0 {
			return time.Time{}, false
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// parseSeconds returns a rounded positive duration, or nil when absent or zero.
func parseSeconds(raw json.RawMessage) *int {
	s := rawString(raw)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return nil
	}
	d := int(math.Round(f))
	return &d
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
