package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter replies per model from a queue; an empty queue fails.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string][]scriptedReply
	calls   map[string]int
	opts    []CallOptions
}

type scriptedReply struct {
	raw string
	err error
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{replies: map[string][]scriptedReply{}, calls: map[string]int{}}
}

func (s *scriptedCompleter) on(model string, replies ...scriptedReply) *scriptedCompleter {
	s.replies[model] = append(s.replies[model], replies...)
	return s
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt, model string, opts CallOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[model]++
	s.opts = append(s.opts, opts)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	queue := s.replies[model]
	if len(queue) == 0 {
		return "", errors.New("HTTP 503 Service Unavailable")
	}
	next := queue[0]
	s.replies[model] = queue[1:]
	return next.raw, next.err
}

func fail(msg string) scriptedReply { return scriptedReply{err: errors.New(msg)} }
func ok(raw string) scriptedReply   { return scriptedReply{raw: raw} }

type answerReply struct {
	Answer string `json:"answer"`
}

func testClient(c Completer) *TieredClient {
	return NewTieredClient(c, TieredOptions{
		PrimaryModel:   "small",
		SecondaryModel: "large",
		BaseDelay:      10 * time.Millisecond,
	})
}

func TestTieredClient_PrimarySucceeds(t *testing.T) {
	c := newScripted().on("small", ok(`{"answer": "hi"}`))

	var out answerReply
	res, err := testClient(c).Generate(context.Background(), "prompt", &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Answer)
	assert.Equal(t, "primary", res.Tier)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.TotalBackoff)
	assert.Equal(t, 0, c.calls["large"])

	require.Len(t, c.opts, 1)
	assert.Equal(t, DefaultCallOptions(), c.opts[0])
}

func TestTieredClient_SecondaryAfterThreePrimaryFailures(t *testing.T) {
	c := newScripted().
		on("small", fail("timeout"), fail("timeout"), fail("timeout"), ok(`{"answer": "never"}`)).
		on("large", ok(`{"answer": "from large"}`))

	var out answerReply
	res, err := testClient(c).Generate(context.Background(), "prompt", &out, nil)
	require.NoError(t, err)

	assert.Equal(t, "from large", out.Answer)
	assert.Equal(t, "secondary", res.Tier)
	assert.Equal(t, "large", res.Model)
	assert.Equal(t, 3, c.calls["small"], "no fourth primary call")
	assert.Equal(t, 1, c.calls["large"])
	assert.Equal(t, 4, res.Attempts)
	// base * (1 + 2 + 3)
	assert.Equal(t, 60*time.Millisecond, res.TotalBackoff)
	assert.GreaterOrEqual(t, res.Duration, 60*time.Millisecond)
	assert.Len(t, res.RetryReasons, 3)
}

// transcript records what the client reports to a turn logger.
type transcript struct {
	lines    []string
	requests []string
}

func (tr *transcript) Log(format string, args ...interface{}) {
	tr.lines = append(tr.lines, fmt.Sprintf(format, args...))
}

func (tr *transcript) LogRequest(tier, model, prompt string) {
	tr.requests = append(tr.requests, tier+"/"+model+": "+prompt)
}

func TestTieredClient_RetryReasonsAndRequestLog(t *testing.T) {
	c := newScripted().
		on("small", fail("HTTP 503 Service Unavailable"), fail("invalid api key"), ok(`{"answer": "hi"}`))

	tr := &transcript{}
	var out answerReply
	res, err := testClient(c).Generate(context.Background(), "prompt", &out, tr)
	require.NoError(t, err)

	assert.Equal(t, []string{"transient_error", "model_error"}, res.RetryReasons)
	assert.Equal(t, []string{"primary/small: prompt", "primary/small: prompt", "primary/small: prompt"}, tr.requests)
	assert.Contains(t, tr.lines, "Retrying operation (attempt 3/3)")
}

func TestTieredClient_BothTiersExhausted(t *testing.T) {
	c := newScripted()

	var out answerReply
	res, err := testClient(c).Generate(context.Background(), "prompt", &out, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 3, c.calls["small"])
	assert.Equal(t, 3, c.calls["large"])
	assert.Equal(t, 6, res.Attempts)
	// secondary does not wait after its last attempt: 60ms + 10ms + 20ms
	assert.Equal(t, 90*time.Millisecond, res.TotalBackoff)
}

func TestTieredClient_UndecodableReplies(t *testing.T) {
	c := newScripted().
		on("small", ok("no json"), ok("still none"), ok("nope")).
		on("large", ok("sorry"), ok("sorry"), ok("last words"))

	var out answerReply
	res, err := testClient(c).Generate(context.Background(), "prompt", &out, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidReply)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, "last words", res.Raw)
}

func TestTieredClient_RepairedReplyCountsAsSuccess(t *testing.T) {
	c := newScripted().on("small", ok(`{"answer": "almost",}`))

	var out answerReply
	res, err := testClient(c).Generate(context.Background(), "prompt", &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "almost", out.Answer)
	assert.True(t, res.Processed.RepairStats.WasRepaired)
}

func TestTieredClient_Cancellation(t *testing.T) {
	c := newScripted()
	client := NewTieredClient(c, TieredOptions{
		PrimaryModel:   "small",
		SecondaryModel: "large",
		BaseDelay:      time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	var out answerReply
	_, err := client.Generate(ctx, "prompt", &out, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 0, c.calls["large"], "secondary tier must not start after cancellation")
}

func TestTieredClient_RequestTimeoutPerAttempt(t *testing.T) {
	var calls int
	slow := CompleterFunc(func(ctx context.Context, prompt, model string, opts CallOptions) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"answer": "second try"}`, nil
	})
	client := NewTieredClient(slow, TieredOptions{
		PrimaryModel:   "small",
		BaseDelay:      time.Millisecond,
		RequestTimeout: 20 * time.Millisecond,
	})

	var out answerReply
	res, err := client.Generate(context.Background(), "prompt", &out, nil)
	require.NoError(t, err)
	assert.Equal(t, "second try", out.Answer)
	assert.Equal(t, 2, res.Attempts)
}

func TestNewTieredClient_SingleTier(t *testing.T) {
	client := NewTieredClient(newScripted(), TieredOptions{PrimaryModel: "only"})
	tiers := client.Tiers()
	require.Len(t, tiers, 1)
	assert.Equal(t, 3, tiers[0].Retry.MaxAttempts)
	assert.Equal(t, time.Second, tiers[0].Retry.BaseDelay)
	assert.True(t, tiers[0].Retry.WaitAfterLast)
}
