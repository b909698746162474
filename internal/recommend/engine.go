// internal/recommend/engine.go
package recommend

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bookrec/internal/apperr"
	"bookrec/internal/catalog"
	"bookrec/internal/history"
)

// DefaultLimit is the number of recommendations returned.
const DefaultLimit = 5

// HistorySource yields the distinct books a user has interacted with.
type HistorySource interface {
	BookIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Engine scores catalog books against a user's reading history. It only
// reads: the cache snapshot and the history log.
type Engine struct {
	cache   *catalog.Cache
	history HistorySource
	limit   int
	tracer  trace.Tracer
	served  metric.Int64Counter
}

// Option customizes the Engine.
type Option func(*Engine)

// WithLimit caps the number of recommendations.
func WithLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

func NewEngine(cache *catalog.Cache, hist HistorySource, opts ...Option) *Engine {
	e := &Engine{
		cache:   cache,
		history: hist,
		limit:   DefaultLimit,
		tracer:  otel.Tracer("bookrec/recommend"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.served, _ = otel.Meter("bookrec/recommend").Int64Counter("bookrec.recommend.served",
		metric.WithDescription("Recommendation lists computed"))
	return e
}

var _ HistorySource = (*history.Log)(nil)

type candidate struct {
	id    int64
	score int
}

// Recommend returns up to the limit of book ids ranked by shared genre and
// author with the user's history. Books already in the history are skipped,
// and ties keep catalog order.
func (e *Engine) Recommend(ctx context.Context, userID int64) ([]int64, error) {
	ctx, span := e.tracer.Start(ctx, "recommend.recommend", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	read, err := e.history.BookIDs(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Store(err, "read history")
	}
	if len(read) == 0 {
		return []int64{}, nil
	}

	snap := e.cache.Snapshot()
	seen := make(map[int64]struct{}, len(read))
	genres := make(map[string]struct{})
	authors := make(map[string]struct{})
	for _, id := range read {
		seen[id] = struct{}{}
		// Books gone from the catalog add no affinity.
		entry, ok := snap.Get(id)
		if !ok {
			continue
		}
		if g := normalize(entry.Genre); g != "" {
			genres[g] = struct{}{}
		}
		if a := normalize(entry.Author); a != "" {
			authors[a] = struct{}{}
		}
	}

	var candidates []candidate
	for entry := range snap.All() {
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		score := 0
		if _, ok := genres[normalize(entry.Genre)]; ok {
			score++
		}
		if _, ok := authors[normalize(entry.Author)]; ok {
			score++
		}
		if score > 0 {
			candidates = append(candidates, candidate{id: entry.ID, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > e.limit {
		candidates = candidates[:e.limit]
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}

	e.served.Add(ctx, 1)
	span.SetAttributes(attribute.Int("history.books", len(read)), attribute.Int("recommend.count", len(ids)))
	return ids, nil
}

// Recommendations resolves Recommend's ids through the catalog cache.
func (e *Engine) Recommendations(ctx context.Context, userID int64) ([]catalog.Entry, error) {
	ids, err := e.Recommend(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]catalog.Entry, len(ids))
	for i, id := range ids {
		entries[i] = e.cache.Lookup(id)
	}
	return entries, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
