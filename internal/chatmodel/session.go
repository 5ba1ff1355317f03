package chatmodel

import "time"

type SessionKind string

const (
	SessionPRSpecific     SessionKind = "PR_SPECIFIC"
	SessionRepositoryWide SessionKind = "REPOSITORY_WIDE"
)

// Session is one conversation thread, owned by the user who created it.
type Session struct {
	ID           string      `json:"session_id"`
	Name         string      `json:"session_name"`
	Kind         SessionKind `json:"session_type"`
	UserID       int64       `json:"user_id"`
	PRMetadataID *string     `json:"pr_metadata_id,omitempty"`
	RepositoryID *string     `json:"repository_id,omitempty"`
	LastActivity time.Time   `json:"last_activity"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	DeletedAt    *time.Time  `json:"-"`
}

// Scope returns the retrieval scope of the session.
func (s *Session) Scope() Scope {
	var sc Scope
	if s.PRMetadataID != nil {
		sc.PRMetadataID = *s.PRMetadataID
	}
	if s.RepositoryID != nil {
		sc.RepositoryID = *s.RepositoryID
	}
	return sc
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// MessageType tags how the content should be rendered.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageCode     MessageType = "code"
	MessageJSON     MessageType = "json"
	MessageMarkdown MessageType = "markdown"
)

// ParseMessageType validates a model-supplied type, defaulting to text.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageText, MessageCode, MessageJSON, MessageMarkdown:
		return MessageType(s)
	}
	return MessageText
}

type ResponseMetadata struct {
	FollowupQuestions []string `json:"followup_questions,omitempty"`
	ContextSources    []string `json:"context_sources,omitempty"`
	ConfidenceScore   float64  `json:"confidence_score"`
}

// Message is one immutable turn half. Messages are only ever appended.
type Message struct {
	ID             string            `json:"message_id"`
	SessionID      string            `json:"session_id"`
	Sender         Sender            `json:"sender_type"`
	Type           MessageType       `json:"message_type"`
	Content        string            `json:"message_content"`
	ContextUsed    []string          `json:"context_used,omitempty"`
	Classification *Category         `json:"query_classification,omitempty"`
	Metadata       *ResponseMetadata `json:"response_metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// ModelAnswer is the structured reply produced by the model, or a fallback.
type ModelAnswer struct {
	Answer            string      `json:"answer"`
	MessageType       MessageType `json:"message_type"`
	ContextUsed       []string    `json:"context_used"`
	FollowupQuestions []string    `json:"followup_questions"`
	Confidence        float64     `json:"confidence_score"`
	Sources           []string    `json:"sources"`
}

// MaxFollowups bounds the follow-up suggestions attached to an answer.
const MaxFollowups = 3
