package chat

import (
	"context"
	"fmt"

	"github.com/livereview/prchat/internal/chatmodel"
)

// SessionAnalytics summarises the bot answers of a session.
type SessionAnalytics struct {
	SessionID     string         `json:"session_id"`
	QueryTypes    map[string]int `json:"query_types"`
	ContextUsage  map[string]int `json:"context_usage"`
	AvgConfidence float64        `json:"avg_confidence"`
	MessageCount  int            `json:"message_count"`
}

func (s *Service) SessionAnalytics(ctx context.Context, userID int64, sessionID string) (*SessionAnalytics, error) {
	if _, err := s.deps.Store.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.deps.Store.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return computeAnalytics(sessionID, msgs), nil
}

func computeAnalytics(sessionID string, msgs []chatmodel.Message) *SessionAnalytics {
	a := &SessionAnalytics{
		SessionID:    sessionID,
		QueryTypes:   make(map[string]int),
		ContextUsage: make(map[string]int),
	}
	var total float64
	var n int
	for _, m := range msgs {
		if m.Sender != chatmodel.SenderBot {
			continue
		}
		a.MessageCount++
		if m.Classification != nil {
			a.QueryTypes[string(*m.Classification)]++
		}
		for _, c := range m.ContextUsed {
			a.ContextUsage[c]++
		}
		if m.Metadata != nil && m.Metadata.ConfidenceScore > 0 {
			total += m.Metadata.ConfidenceScore
			n++
		}
	}
	if n > 0 {
		a.AvgConfidence = total / float64(n)
	}
	return a
}
