package loadgen

import (
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Generator builds synthetic post-call webhook bodies in the platform's nested layout.
type Generator struct {
	faker    *gofakeit.Faker
	agentIDs []string
	now      func() time.Time
}

// NewGenerator returns a generator. A zero seed picks a random one; agentIDs empty means "agent_demo".
func NewGenerator(seed int64, agentIDs []string) *Generator {
	if len(agentIDs) == 0 {
		agentIDs = []string{"agent_demo"}
	}
	return &Generator{faker: gofakeit.New(seed), agentIDs: agentIDs, now: time.Now}
}

type turn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type criterion struct {
	CriteriaID string `json:"criteria_id"`
	Result     string `json:"result"`
	Rationale  string `json:"rationale"`
}

type postCall struct {
	Type           string `json:"type"`
	EventTimestamp int64  `json:"event_timestamp"`
	Data           struct {
		AgentID        string `json:"agent_id"`
		ConversationID string `json:"conversation_id"`
		Transcript     []turn `json:"transcript"`
		Metadata       struct {
			CallDurationSecs int `json:"call_duration_secs"`
		} `json:"metadata"`
		Analysis struct {
			TranscriptSummary         string               `json:"transcript_summary"`
			EvaluationCriteriaResults map[string]criterion `json:"evaluation_criteria_results"`
		} `json:"analysis"`
		ConversationInitiationClientData struct {
			DynamicVariables map[string]string `json:"dynamic_variables"`
		} `json:"conversation_initiation_client_data"`
	} `json:"data"`
}

var criteriaIDs = []string{"greeting", "resolution", "politeness"}

// Next returns one payload and its conversation id.
func (g *Generator) Next() (string, []byte, error) {
	f := g.faker

	var p postCall
	p.Type = "post_call_transcription"
	p.EventTimestamp = g.now().Add(-time.Duration(f.Number(0, 3600)) * time.Second).Unix()
	p.Data.ConversationID = "conv_" + f.UUID()
	p.Data.AgentID = f.RandomString(g.agentIDs)
	p.Data.Metadata.CallDurationSecs = f.Number(5, 900)

	turns := f.Number(2, 8)
	for i := 0; i < turns; i++ {
		role := "user"
		if i%2 == 0 {
			role = "agent"
		}
		p.Data.Transcript = append(p.Data.Transcript, turn{Role: role, Message: f.Sentence(f.Number(3, 14))})
	}
	p.Data.Analysis.TranscriptSummary = f.Sentence(12)

	p.Data.Analysis.EvaluationCriteriaResults = make(map[string]criterion, len(criteriaIDs))
	for _, id := range criteriaIDs {
		result := "success"
		if f.Number(1, 100) <= 25 {
			result = "failure"
		}
		p.Data.Analysis.EvaluationCriteriaResults[id] = criterion{CriteriaID: id, Result: result, Rationale: f.Sentence(6)}
	}

	p.Data.ConversationInitiationClientData.DynamicVariables = map[string]string{
		"caller_id": f.Phone(),
		"agent_id":  p.Data.AgentID,
	}

	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	return p.Data.ConversationID, body, nil
}
