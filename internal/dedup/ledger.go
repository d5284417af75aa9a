// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// execer is the subset of *pgxpool.Pool the ledger uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Ledger records replied message ids in Postgres. Rows older than the TTL
// count as expired and may be claimed again.
type Ledger struct {
	db  execer
	ttl time.Duration
}

// NewLedger creates a ledger backed by the given Postgres pool.
// It ensures the replied_messages table exists on creation.
func NewLedger(ctx context.Context, pool *pgxpool.Pool, ttl time.Duration) (*Ledger, error) {
	l := newLedger(pool, ttl)
	if err := l.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure dedup ledger schema: %w", err)
	}
	slog.Info("dedup ledger initialised", "ttl", l.ttl.String())
	return l, nil
}

func newLedger(db execer, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{db: db, ttl: ttl}
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS replied_messages (
			message_id  TEXT PRIMARY KEY,
			claimed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_replied_claimed ON replied_messages(claimed_at);
	`)
	return err
}

// Claim returns true if messageID has no live claim. An expired row is
// taken over in the same statement.
func (l *Ledger) Claim(ctx context.Context, messageID string) (bool, error) {
	tag, err := l.db.Exec(ctx, `
		INSERT INTO replied_messages (message_id, claimed_at)
		VALUES ($1, NOW())
		ON CONFLICT (message_id) DO UPDATE SET claimed_at = NOW()
		WHERE replied_messages.claimed_at < NOW() - $2::interval
	`, strings.TrimSpace(messageID), interval(l.ttl))
	if err != nil {
		return false, fmt.Errorf("dedup ledger claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes a claim.
func (l *Ledger) Release(ctx context.Context, messageID string) error {
	_, err := l.db.Exec(ctx, `DELETE FROM replied_messages WHERE message_id = $1`, strings.TrimSpace(messageID))
	if err != nil {
		return fmt.Errorf("dedup ledger release: %w", err)
	}
	return nil
}

// Prune deletes expired claims and returns how many were removed.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	tag, err := l.db.Exec(ctx, `
		DELETE FROM replied_messages
		WHERE claimed_at < NOW() - $1::interval
	`, interval(l.ttl))
	if err != nil {
		return 0, fmt.Errorf("dedup ledger prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPruner prunes expired claims every interval until ctx is cancelled.
func (l *Ledger) RunPruner(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Prune(ctx)
			if err != nil {
				slog.Error("dedup ledger prune failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("pruned expired dedup claims", "count", n)
			}
		}
	}
}

func interval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int(d.Seconds()))
}
