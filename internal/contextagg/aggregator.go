// Package contextagg assembles the context bundle for one question: it fetches
// only the kinds the classification asks for, concurrently, and normalises
// them for the prompt.
package contextagg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/metrics"
)

var (
	// ErrNoContext is returned when nothing at all could be gathered.
	ErrNoContext = errors.New("no context available")
	// ErrRetrievalFailed is returned instead of ErrNoContext when the bundle
	// is empty because fetchers failed rather than found nothing.
	ErrRetrievalFailed = errors.New("context retrieval failed")
)

const DefaultFetchTimeout = 5 * time.Second

// Options tunes an Aggregator. Zero values take the defaults.
type Options struct {
	FetchTimeout time.Duration
	MaxFiles     int
	MaxComments  int
	PreviewChars int
	// Redactor masks secrets in patch previews; nil disables redaction.
	Redactor Redactor
}

// Aggregator gathers context bundles from a Storage.
type Aggregator struct {
	storage Storage
	opts    Options
}

func New(storage Storage, opts Options) *Aggregator {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxComments <= 0 {
		opts.MaxComments = DefaultMaxComments
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = DefaultPreviewChars
	}
	if opts.Redactor == nil {
		opts.Redactor = noRedaction{}
	}
	return &Aggregator{storage: storage, opts: opts}
}

// Gather fetches the kinds required by the classification for the session.
// A fetcher that fails or times out is logged and its kind omitted; the
// others are unaffected. The returned sources name exactly the kinds present
// in the bundle. ErrNoContext is returned with an empty bundle when every
// fetcher came back empty, ErrRetrievalFailed when it is empty because of
// failures.
func (a *Aggregator) Gather(ctx context.Context, c chatmodel.Classification, session *chatmodel.Session) (*chatmodel.ContextBundle, []string, error) {
	scope := session.Scope()
	bundle := &chatmodel.ContextBundle{}
	var mu sync.Mutex
	var failures atomic.Int32
	set := func(fn func()) {
		mu.Lock()
		fn()
		mu.Unlock()
	}

	required := make(map[chatmodel.ContextKind]bool, len(c.Required))
	for _, k := range c.Required {
		required[k] = true
	}
	derived, hasDerived := c.Category.DerivedContext()

	var g errgroup.Group
	for _, kind := range c.Required {
		kind := kind
		g.Go(func() error {
			if !a.fetch(ctx, kind, func(fctx context.Context) (bool, error) {
				return a.fetchKind(fctx, kind, scope, c.Filters, set, bundle)
			}) {
				failures.Add(1)
			}
			return nil
		})
	}
	if session.Kind == chatmodel.SessionRepositoryWide && scope.RepositoryID != "" {
		g.Go(func() error {
			if !a.fetch(ctx, chatmodel.ContextRepository, func(fctx context.Context) (bool, error) {
				repo, err := a.storage.GetRepository(fctx, scope.RepositoryID)
				if err != nil || repo == nil {
					return false, err
				}
				set(func() { bundle.Repository = repo })
				return true, nil
			}) {
				failures.Add(1)
			}
			return nil
		})
	}
	// errors are absorbed per fetcher
	_ = g.Wait()

	if hasDerived {
		a.derive(ctx, derived, scope, required[chatmodel.ContextSummary], bundle)
	}

	kinds := bundle.Kinds()
	sources := make([]string, len(kinds))
	for i, k := range kinds {
		sources[i] = string(k)
	}

	log.Debug().
		Str("session_id", session.ID).
		Str("category", string(c.Category)).
		Strs("sources", sources).
		Msg("Gathered context")

	if len(sources) == 0 {
		if n := failures.Load(); n > 0 {
			return bundle, sources, fmt.Errorf("%w: %d fetchers failed", ErrRetrievalFailed, n)
		}
		return bundle, sources, ErrNoContext
	}
	return bundle, sources, nil
}

// fetch runs one fetcher under the per-fetcher timeout and records the
// outcome. It reports false when the fetcher failed.
func (a *Aggregator) fetch(ctx context.Context, kind chatmodel.ContextKind, fn func(context.Context) (bool, error)) bool {
	fctx, cancel := context.WithTimeout(ctx, a.opts.FetchTimeout)
	defer cancel()
	start := time.Now()
	found, err := fn(fctx)
	metrics.ContextFetchLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.ContextFetches.WithLabelValues(string(kind), "error").Inc()
		log.Error().Err(err).Str("kind", string(kind)).Msg("Context fetch failed, omitting kind")
		return false
	case !found:
		metrics.ContextFetches.WithLabelValues(string(kind), "empty").Inc()
	default:
		metrics.ContextFetches.WithLabelValues(string(kind), "ok").Inc()
	}
	return true
}

func (a *Aggregator) fetchKind(ctx context.Context, kind chatmodel.ContextKind, scope chatmodel.Scope, filters chatmodel.Filters, set func(func()), bundle *chatmodel.ContextBundle) (bool, error) {
	switch kind {
	case chatmodel.ContextMetadata:
		md, err := a.storage.GetMetadata(ctx, scope)
		if err != nil || md == nil {
			return false, err
		}
		set(func() { bundle.Metadata = md })
	case chatmodel.ContextSummary:
		sum, err := a.storage.GetSummary(ctx, scope)
		if err != nil || sum == nil {
			return false, err
		}
		set(func() { bundle.Summary = sum })
	case chatmodel.ContextFiles:
		files, err := a.storage.GetFiles(ctx, scope, filters.FileNames)
		if err != nil {
			return false, err
		}
		fc := buildFilesContext(files, a.opts.MaxFiles, a.opts.PreviewChars, a.opts.Redactor)
		if fc == nil {
			return false, nil
		}
		set(func() { bundle.Files = fc })
	case chatmodel.ContextReviews:
		reviews, err := a.storage.GetReviews(ctx, scope)
		if err != nil {
			return false, err
		}
		rc := buildReviewsContext(reviews)
		if rc == nil {
			return false, nil
		}
		set(func() { bundle.Reviews = rc })
	case chatmodel.ContextComments:
		comments, err := a.storage.GetComments(ctx, scope, a.opts.MaxComments)
		if err != nil {
			return false, err
		}
		cc := buildCommentsContext(comments, a.opts.MaxComments)
		if cc == nil {
			return false, nil
		}
		set(func() { bundle.Comments = cc })
	case chatmodel.ContextCommits:
		commits, err := a.storage.GetCommits(ctx, scope)
		if err != nil {
			return false, err
		}
		cc := buildCommitsContext(commits)
		if cc == nil {
			return false, nil
		}
		set(func() { bundle.Commits = cc })
	default:
		log.Warn().Str("kind", string(kind)).Msg("No fetcher for context kind")
		return false, nil
	}
	return true, nil
}

// derive adds the security or performance view. It reuses the summary already
// in the bundle and only reads it again when the summary was not required.
func (a *Aggregator) derive(ctx context.Context, kind chatmodel.ContextKind, scope chatmodel.Scope, summaryRequired bool, bundle *chatmodel.ContextBundle) {
	sum := bundle.Summary
	if sum == nil && !summaryRequired {
		a.fetch(ctx, chatmodel.ContextSummary, func(fctx context.Context) (bool, error) {
			s, err := a.storage.GetSummary(fctx, scope)
			sum = s
			return s != nil, err
		})
	}
	if sum == nil {
		return
	}
	switch kind {
	case chatmodel.ContextSecurity:
		bundle.Security = DeriveSecurity(sum)
	case chatmodel.ContextPerformance:
		bundle.Performance = DerivePerformance(sum)
	}
}
