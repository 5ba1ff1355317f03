package orchestrator

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
)

const (
	noAnswer          = "No answer provided"
	defaultConfidence = 0.5
)

// reply is the wire shape of the model's JSON. Fields are kept raw so that
// wrongly typed values fall back to defaults instead of failing the decode.
type reply struct {
	Answer      json.RawMessage `json:"answer"`
	MessageType json.RawMessage `json:"message_type"`
	ContextUsed json.RawMessage `json:"context_used"`
	Followups   json.RawMessage `json:"followup_questions"`
	Confidence  json.RawMessage `json:"confidence_score"`
	Sources     json.RawMessage `json:"sources"`
}

func parseReply(r reply) chatmodel.ModelAnswer {
	msgType := chatmodel.ParseMessageType(rawString(r.MessageType))
	return chatmodel.ModelAnswer{
		Answer:            parseAnswer(r.Answer, msgType),
		MessageType:       msgType,
		ContextUsed:       rawStrings(r.ContextUsed, 0),
		FollowupQuestions: rawStrings(r.Followups, chatmodel.MaxFollowups),
		Confidence:        parseConfidence(r.Confidence),
		Sources:           rawStrings(r.Sources, 0),
	}
}

// parseAnswer accepts a string or any JSON value. Non-string values are
// pretty printed unless the reply declares itself json, in which case they
// are kept compact.
func parseAnswer(raw json.RawMessage, msgType chatmodel.MessageType) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return noAnswer
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return noAnswer
		}
		return s
	}
	if msgType == chatmodel.MessageJSON {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			return compact.String()
		}
		return string(raw)
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return string(raw)
	}
	return indented.String()
}

// parseConfidence reads a number (or numeric string) clamped to [0,1].
func parseConfidence(raw json.RawMessage) float64 {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return defaultConfidence
		}
		parsed, perr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if perr != nil {
			return defaultConfidence
		}
		v = parsed
	}
	return min(1, max(0, v))
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// rawStrings keeps the string items of a JSON array; anything else yields an
// empty slice. limit <= 0 means no limit.
func rawStrings(raw json.RawMessage, limit int) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) != nil {
			continue
		}
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
