// Package sweep purges expired guest conversations. It runs on an external
// trigger (the cleanup endpoint, invoked by a scheduler) rather than a
// self-owned timer, so re-running it is always safe.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rianhasansiam/digicam/internal/metrics"
	"github.com/rianhasansiam/digicam/internal/store"
)

// Result reports what one sweep removed.
type Result struct {
	ConversationsDeleted int64 `json:"conversations_deleted"`
	MessagesDeleted      int64 `json:"messages_deleted"`
}

// Sweeper deletes guest conversations whose expiry has passed, messages
// first. Idempotent: a sweep with nothing expired returns zero counts.
type Sweeper struct {
	store store.ChatStore
	log   zerolog.Logger
}

// New creates a Sweeper over the given store.
func New(chatStore store.ChatStore, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store: chatStore,
		log:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Sweep removes all and only guest conversations with expiresAt <= now,
// and their messages. Authenticated conversations are never touched.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*Result, error) {
	conversations, messages, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	metrics.SweptConversations.Add(float64(conversations))
	metrics.SweptMessages.Add(float64(messages))

	if conversations > 0 {
		s.log.Info().
			Int64("conversations", conversations).
			Int64("messages", messages).
			Msg("expired guest conversations removed")
	}

	return &Result{
		ConversationsDeleted: conversations,
		MessagesDeleted:      messages,
	}, nil
}
