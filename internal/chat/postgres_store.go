package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/livereview/prchat/internal/chatmodel"
)

// PostgresStore keeps sessions in chat_sessions and messages in
// chat_messages.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const sessionColumns = `session_id, session_name, session_type, user_id, pr_metadata_id, repository_id, last_activity, created_at, updated_at`

func (s *PostgresStore) CreateSession(ctx context.Context, sess *chatmodel.Session) error {
	if sess.ID == "" {
		sess.ID = NewSessionID()
	}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO chat_sessions (session_id, session_name, session_type, user_id, pr_metadata_id, repository_id, last_activity)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        RETURNING last_activity, created_at, updated_at
    `,
		sess.ID, sess.Name, string(sess.Kind), sess.UserID, sess.PRMetadataID, sess.RepositoryID,
	).Scan(&sess.LastActivity, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string, userID int64) (*chatmodel.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
        WHERE session_id=$1 AND user_id=$2 AND deleted_at IS NULL`, sessionID, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID int64, filter SessionFilter) ([]*chatmodel.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
        WHERE user_id=$1 AND deleted_at IS NULL
          AND ($2 = '' OR repository_id = $2)
          AND ($3 = '' OR pr_metadata_id = $3)
        ORDER BY last_activity DESC`, userID, filter.RepositoryID, filter.PRMetadataID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rows.Close()
	var out []*chatmodel.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET last_activity=$2, updated_at=$2
        WHERE session_id=$1 AND deleted_at IS NULL`, sessionID, at)
	if err != nil {
		return fmt.Errorf("touch chat session: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string, userID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET deleted_at=$3, updated_at=$3
        WHERE session_id=$1 AND user_id=$2 AND deleted_at IS NULL`, sessionID, userID, at)
	if err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *chatmodel.Message) error {
	if m.ID == "" {
		m.ID = NewMessageID()
	}
	var mdJSON []byte
	if m.Metadata != nil {
		var err error
		if mdJSON, err = json.Marshal(m.Metadata); err != nil {
			return err
		}
	}
	var classification *string
	if m.Classification != nil {
		c := string(*m.Classification)
		classification = &c
	}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO chat_messages (message_id, session_id, sender_type, message_type, message_content, context_used, query_classification, response_metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at
    `,
		m.ID, m.SessionID, string(m.Sender), string(m.Type), m.Content, pq.Array(ensureSliceNotNil(m.ContextUsed)), classification, mdJSON,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]chatmodel.Message, error) {
	// ULIDs sort by creation time, so the newest window is taken by id.
	query := `SELECT message_id, session_id, sender_type, message_type, message_content, context_used, query_classification, response_metadata, created_at
        FROM chat_messages WHERE session_id=$1 ORDER BY message_id DESC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()
	var out []chatmodel.Message
	for rows.Next() {
		var (
			m              chatmodel.Message
			sender, mtype  string
			used           []string
			classification sql.NullString
			mdJSON         []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &mtype, &m.Content, pq.Array(&used), &classification, &mdJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Sender = chatmodel.Sender(sender)
		m.Type = chatmodel.ParseMessageType(mtype)
		m.ContextUsed = used
		if classification.Valid {
			c := chatmodel.Category(classification.String)
			m.Classification = &c
		}
		if len(mdJSON) > 0 {
			var md chatmodel.ResponseMetadata
			if err := json.Unmarshal(mdJSON, &md); err == nil {
				m.Metadata = &md
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*chatmodel.Session, error) {
	var (
		sess       chatmodel.Session
		kind       string
		prID, repo sql.NullString
	)
	if err := scanner.Scan(&sess.ID, &sess.Name, &kind, &sess.UserID, &prID, &repo, &sess.LastActivity, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Kind = chatmodel.SessionKind(kind)
	if prID.Valid {
		sess.PRMetadataID = &prID.String
	}
	if repo.Valid {
		sess.RepositoryID = &repo.String
	}
	return &sess, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func ensureSliceNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
