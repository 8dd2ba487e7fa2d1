package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/planetrip/planet-chat/internal/model"
	registrystore "github.com/planetrip/planet-chat/internal/registry/store"
)

// Reindexer polls for messages whose search text is missing (rows written
// before the search columns existed, or rows whose derivation failed) and
// backfills it so the fulltext and trigram indexes cover them.
type Reindexer struct {
	store    registrystore.ChatStore
	interval time.Duration
	batch    int
}

// NewReindexer creates a new background search-text backfiller.
func NewReindexer(store registrystore.ChatStore, batchSize int) *Reindexer {
	return &Reindexer{
		store:    store,
		interval: 30 * time.Second,
		batch:    batchSize,
	}
}

// Start begins the backfill loop. Returns when ctx is cancelled.
func (r *Reindexer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reindexBatch(ctx)
		}
	}
}

func (r *Reindexer) reindexBatch(ctx context.Context) {
	msgs, err := r.store.ListMessagesMissingSearchText(ctx, r.batch)
	if err != nil {
		log.Error("Reindexer: list messages failed", "err", err)
		return
	}
	for _, m := range msgs {
		text := model.DeriveSearchText(m.Body)
		if text == "" {
			// Punctuation-only body derives to nothing. Store a single space
			// so the row stops matching the missing-search-text query; a
			// space produces an empty tsvector and never matches a search.
			text = " "
		}
		if err := r.store.SetSearchText(ctx, m.ID, text); err != nil {
			log.Error("Reindexer: set search text failed", "message", m.ID, "err", err)
		}
	}
	if len(msgs) > 0 {
		log.Debug("Reindexer: backfilled batch", "count", len(msgs))
	}
}
