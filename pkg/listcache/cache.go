package listcache

import (
	"context"
	"time"

	"ai-chat-be/internal/entity"
	"ai-chat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Fetcher loads the authoritative summary list for one owner.
type Fetcher func(ctx context.Context, ownerId uuid.UUID) ([]*entity.ConversationSummary, error)

// Mutator transforms a local copy of the list. It must return the new list.
type Mutator func(summaries []*entity.ConversationSummary) []*entity.ConversationSummary

// Cache is a revalidating, per-owner cache of conversation summaries. Local
// mutations may be applied optimistically ahead of the remote round-trip;
// rollback is always a full revalidation rather than an inverse patch.
type Cache struct {
	entries *cache.Cache
	fetch   Fetcher
	logger  logger.ILogger
}

func NewCache(fetch Fetcher, ttl time.Duration, log logger.ILogger) *Cache {
	// Expired entries are swept every few minutes; reads never see them.
	return &Cache{
		entries: cache.New(ttl, 10*time.Minute),
		fetch:   fetch,
		logger:  log,
	}
}

// Get returns the cached list for the owner, fetching on miss.
func (c *Cache) Get(ctx context.Context, ownerId uuid.UUID) ([]*entity.ConversationSummary, error) {
	if x, found := c.entries.Get(ownerId.String()); found {
		return x.([]*entity.ConversationSummary), nil
	}
	return c.Revalidate(ctx, ownerId)
}

// Revalidate replaces the cached list with a fresh authoritative read.
func (c *Cache) Revalidate(ctx context.Context, ownerId uuid.UUID) ([]*entity.ConversationSummary, error) {
	summaries, err := c.fetch(ctx, ownerId)
	if err != nil {
		return nil, err
	}
	c.entries.Set(ownerId.String(), summaries, cache.DefaultExpiration)
	return summaries, nil
}

// Invalidate drops the owner's entry; the next Get refetches.
func (c *Cache) Invalidate(ownerId uuid.UUID) {
	c.entries.Delete(ownerId.String())
}

// MutateLocal applies a mutation to the cached copy only. No-op on miss.
func (c *Cache) MutateLocal(ownerId uuid.UUID, mutate Mutator) {
	x, found := c.entries.Get(ownerId.String())
	if !found {
		return
	}
	current := x.([]*entity.ConversationSummary)
	copied := make([]*entity.ConversationSummary, len(current))
	for i, s := range current {
		dup := *s
		copied[i] = &dup
	}
	c.entries.Set(ownerId.String(), mutate(copied), cache.DefaultExpiration)
}

// Optimistic applies a local mutation, then runs the remote operation. On
// remote failure the local state is rolled back by revalidating against
// the store; the remote error is returned either way. This is the single
// wrapper behind delete and rename, which previously duplicated the
// apply/rollback dance per call site.
func (c *Cache) Optimistic(ctx context.Context, ownerId uuid.UUID, mutate Mutator, remote func(ctx context.Context) error) error {
	c.MutateLocal(ownerId, mutate)

	if err := remote(ctx); err != nil {
		if _, revErr := c.Revalidate(ctx, ownerId); revErr != nil {
			c.logger.Warn("ListCache", "Rollback revalidation failed", map[string]interface{}{
				"owner_id": ownerId,
				"error":    revErr.Error(),
			})
			// Drop the entry so stale optimistic state cannot linger.
			c.Invalidate(ownerId)
		}
		return err
	}
	return nil
}

// Remove returns a Mutator dropping one conversation from the list.
func Remove(conversationId uuid.UUID) Mutator {
	return func(summaries []*entity.ConversationSummary) []*entity.ConversationSummary {
		out := summaries[:0]
		for _, s := range summaries {
			if s.Id != conversationId {
				out = append(out, s)
			}
		}
		return out
	}
}

// Rename returns a Mutator retitling one conversation in place.
func Rename(conversationId uuid.UUID, title string) Mutator {
	return func(summaries []*entity.ConversationSummary) []*entity.ConversationSummary {
		for _, s := range summaries {
			if s.Id == conversationId {
				s.Title = title
			}
		}
		return summaries
	}
}

// StartRefreshLoop revalidates every cached owner on a fixed interval
// until ctx is cancelled. Errors are logged and the stale entry kept.
func (c *Cache) StartRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for key := range c.entries.Items() {
				ownerId, err := uuid.Parse(key)
				if err != nil {
					continue
				}
				if _, err := c.Revalidate(ctx, ownerId); err != nil {
					c.logger.Warn("ListCache", "Background refresh failed", map[string]interface{}{
						"owner_id": key,
						"error":    err.Error(),
					})
				}
			}
		}
	}
}
