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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// --- Mock execer ---

type execCall struct {
	sql  string
	args []any
}

type mockExecer struct {
	mu    sync.Mutex
	calls []execCall
	tag   string
	err   error
}

func (m *mockExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, execCall{sql: sql, args: args})
	if m.err != nil {
		return pgconn.CommandTag{}, m.err
	}
	return pgconn.NewCommandTag(m.tag), nil
}

// TestRedisKey verifies ids are namespaced and trimmed.
func TestRedisKey(t *testing.T) {
	if got := redisKey("  <m1@acme.com> "); got != "autoreply:replied:<m1@acme.com>" {
		t.Errorf("redisKey = %q", got)
	}
}

// TestNewRedisFilter_DefaultTTL verifies non-positive TTLs fall back.
func TestNewRedisFilter_DefaultTTL(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if f := NewRedisFilter(rdb, 0); f.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", f.ttl, DefaultTTL)
	}
	if f := NewRedisFilter(rdb, time.Hour); f.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", f.ttl)
	}
}

// TestRedisFilter_Unreachable verifies backend errors are surfaced, not
// reported as duplicates.
func TestRedisFilter_Unreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	f := NewRedisFilter(rdb, time.Minute)
	isNew, err := f.Claim(context.Background(), "m1")
	if err == nil {
		t.Fatal("expected error from unreachable redis")
	}
	if isNew {
		t.Error("claim should not succeed on error")
	}
	if err := f.Release(context.Background(), "m1"); err == nil {
		t.Error("expected release error from unreachable redis")
	}
}

// TestLedger_Claim verifies RowsAffected drives the claim result.
func TestLedger_Claim(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"inserted", "INSERT 0 1", true},
		{"live claim exists", "INSERT 0 0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockExecer{tag: tt.tag}
			l := newLedger(db, 2*time.Hour)

			got, err := l.Claim(context.Background(), " m1 ")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Claim = %v, want %v", got, tt.want)
			}

			call := db.calls[0]
			if !strings.Contains(call.sql, "ON CONFLICT (message_id)") {
				t.Errorf("claim should upsert on message_id, got %s", call.sql)
			}
			if call.args[0] != "m1" || call.args[1] != "7200 seconds" {
				t.Errorf("args = %v", call.args)
			}
		})
	}
}

// TestLedger_Errors verifies database errors are wrapped.
func TestLedger_Errors(t *testing.T) {
	boom := errors.New("connection refused")
	l := newLedger(&mockExecer{err: boom}, 0)

	if l.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want default", l.ttl)
	}
	if _, err := l.Claim(context.Background(), "m1"); !errors.Is(err, boom) {
		t.Errorf("Claim err = %v", err)
	}
	if err := l.Release(context.Background(), "m1"); !errors.Is(err, boom) {
		t.Errorf("Release err = %v", err)
	}
	if _, err := l.Prune(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Prune err = %v", err)
	}
}

// TestLedger_ReleaseAndPrune verifies the statements issued.
func TestLedger_ReleaseAndPrune(t *testing.T) {
	db := &mockExecer{tag: "DELETE 3"}
	l := newLedger(db, time.Minute)

	if err := l.Release(context.Background(), "m1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	n, err := l.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Errorf("pruned = %d, want 3", n)
	}

	if !strings.HasPrefix(db.calls[0].sql, "DELETE FROM replied_messages WHERE message_id") {
		t.Errorf("release sql = %s", db.calls[0].sql)
	}
	if db.calls[1].args[0] != "60 seconds" {
		t.Errorf("prune args = %v", db.calls[1].args)
	}
}
