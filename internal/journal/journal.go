// Package journal keeps a Redis-backed trail of commands issued during
// a session. The trail is append-only from the engine's point of view;
// diagnostic tooling drains it out-of-band.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/archquest/quest-engine/pkg/command"
)

// Entry is one journaled command.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
	SessionID string         `json:"session_id"`
}

// Journal appends command entries to a session-scoped Redis list.
type Journal struct {
	redisClient *redis.Client
	sessionID   string
	logger      *slog.Logger
}

// New creates a journal for the session.
func New(redisClient *redis.Client, sessionID string, logger *slog.Logger) *Journal {
	return &Journal{
		redisClient: redisClient,
		sessionID:   sessionID,
		logger:      logger,
	}
}

func (j *Journal) key() string {
	return fmt.Sprintf("command-journal:%s", j.sessionID)
}

// Middleware returns a bus middleware that journals every command it
// sees. It never cancels: journaling is observation, not policy, and a
// Redis outage must not block play.
func (j *Journal) Middleware() command.Middleware {
	return func(mc command.MiddlewareContext) bool {
		entry := Entry{
			ID:        uuid.New(),
			Name:      mc.Name,
			Metadata:  mc.Metadata,
			IssuedAt:  time.Now().UTC(),
			SessionID: j.sessionID,
		}
		if err := j.append(context.Background(), entry); err != nil {
			j.logger.Error("Failed to journal command", "command", mc.Name, "error", err)
		}
		return true
	}
}

func (j *Journal) append(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if err := j.redisClient.RPush(ctx, j.key(), data).Err(); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Depth returns the number of journaled entries.
func (j *Journal) Depth(ctx context.Context) (int64, error) {
	depth, err := j.redisClient.LLen(ctx, j.key()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read journal depth: %w", err)
	}
	return depth, nil
}

// Drain pops and returns up to max entries from the head of the
// journal, oldest first.
func (j *Journal) Drain(ctx context.Context, max int) ([]Entry, error) {
	entries := make([]Entry, 0, max)
	for len(entries) < max {
		raw, err := j.redisClient.LPop(ctx, j.key()).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("failed to drain journal: %w", err)
		}

		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			j.logger.Warn("Skipping malformed journal entry", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes all journaled entries for the session.
func (j *Journal) Clear(ctx context.Context) error {
	if err := j.redisClient.Del(ctx, j.key()).Err(); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	return nil
}
