package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/himanstore/dmpilot/internal/memory"
)

// Decision is the serializer stage's structured verdict for one cycle.
type Decision struct {
	ShouldReply bool
	ReplyText   string
	Confidence  float64
	Reason      string
	Notes       string
	Memory      memory.Memory
	Actions     []Action
}

// flexBool accepts true/false, "true"/"false"/"yes"/"no"/"1"/"0" and numbers.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch strings.ToLower(strings.Trim(s, `"`)) {
	case "true", "yes", "1":
		*b = true
		return nil
	case "false", "no", "0", "null", "":
		*b = false
		return nil
	}
	if f, err := strconv.ParseFloat(strings.Trim(s, `"`), 64); err == nil {
		*b = f != 0
		return nil
	}
	return fmt.Errorf("cannot interpret %s as bool", s)
}

// flexFloat accepts numbers or numeric strings; anything else reads as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

type decisionEnvelope struct {
	ShouldReply flexBool        `json:"should_reply"`
	ReplyText   string          `json:"reply_text"`
	Confidence  flexFloat       `json:"confidence"`
	Reason      string          `json:"reason"`
	Notes       string          `json:"notes"`
	Memory      json.RawMessage `json:"memory"`
	Actions     json.RawMessage `json:"action_requests"`
}

// DecodeDecision parses the serializer output. The envelope must be a JSON
// object; inside it fields are coerced leniently and a malformed memory block
// falls back to the prior memory rather than failing the cycle.
func DecodeDecision(raw string, prior memory.Memory, conversationID string) (Decision, error) {
	raw = stripFence(raw)

	var env decisionEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Decision{}, fmt.Errorf("serializer output is not a JSON object: %w", err)
	}

	mem := prior.Normalize()
	if len(env.Memory) > 0 {
		var next memory.Memory
		if err := json.Unmarshal(env.Memory, &next); err == nil {
			mem = next.Normalize()
		}
	}

	conf := float64(env.Confidence)
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return Decision{
		ShouldReply: bool(env.ShouldReply),
		ReplyText:   strings.TrimSpace(env.ReplyText),
		Confidence:  conf,
		Reason:      env.Reason,
		Notes:       env.Notes,
		Memory:      mem,
		Actions:     decodeActions(env.Actions, conversationID),
	}, nil
}

// stripFence removes a markdown code fence if the backend wrapped its JSON
// in one despite the response_format hint.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
