package database

import (
	"context"
	"database/sql"
	"fmt"
)

// chatSchema creates the tables owned by the chat service. Pull request
// tables are read-only here and managed by the ingestion side.
const chatSchema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    session_id     TEXT PRIMARY KEY,
    session_name   TEXT NOT NULL,
    session_type   TEXT NOT NULL,
    user_id        BIGINT NOT NULL,
    pr_metadata_id TEXT,
    repository_id  TEXT,
    last_activity  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS chat_sessions_user_activity_idx
    ON chat_sessions (user_id, last_activity DESC) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS chat_messages (
    message_id           TEXT PRIMARY KEY,
    session_id           TEXT NOT NULL REFERENCES chat_sessions (session_id) ON DELETE CASCADE,
    sender_type          TEXT NOT NULL,
    message_type         TEXT NOT NULL DEFAULT 'text',
    message_content      TEXT NOT NULL,
    context_used         TEXT[] NOT NULL DEFAULT '{}',
    query_classification TEXT,
    response_metadata    JSONB,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, message_id);
`

// EnsureSchema creates the chat tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, chatSchema); err != nil {
		return fmt.Errorf("ensure chat schema: %w", err)
	}
	return nil
}
