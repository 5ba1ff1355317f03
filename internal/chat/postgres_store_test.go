package chat

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/prchat/internal/chatmodel"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	// Skip if running in CI without database
	if testing.Short() {
		t.Skip("Skipping database integration test")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()
	repoID := "repo-it"
	sess := &chatmodel.Session{Name: "it", Kind: chatmodel.SessionRepositoryWide, UserID: 987654, RepositoryID: &repoID}
	require.NoError(t, store.CreateSession(ctx, sess))
	defer db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id=$1`, sess.ID)

	got, err := store.GetSession(ctx, sess.ID, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, "it", got.Name)
	_, err = store.GetSession(ctx, sess.ID, sess.UserID+1)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	category := chatmodel.CategoryFileListing
	for _, content := range []string{"q", "a"} {
		require.NoError(t, store.AppendMessage(ctx, &chatmodel.Message{
			SessionID:      sess.ID,
			Sender:         chatmodel.SenderUser,
			Type:           chatmodel.MessageText,
			Content:        content,
			ContextUsed:    []string{"files"},
			Classification: &category,
			Metadata:       &chatmodel.ResponseMetadata{ConfidenceScore: 0.5},
		}))
	}
	msgs, err := store.ListMessages(ctx, sess.ID, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, []string{"files"}, msgs[0].ContextUsed)

	require.NoError(t, store.DeleteSession(ctx, sess.ID, sess.UserID, time.Now()))
	assert.ErrorIs(t, store.DeleteSession(ctx, sess.ID, sess.UserID, time.Now()), ErrSessionNotFound)
}
