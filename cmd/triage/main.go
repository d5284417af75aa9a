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

// Triage Replay Command
//
// Standalone CLI tool that runs a saved webhook payload through the triage
// pipeline. By default it only prints the classification and the reply that
// would be sent. With --send it dispatches the reply for real, using the
// same dedup backend as the service when that backend is Redis.
//
// Usage:
//
//	go run ./cmd/triage/ --payload event.json [--send]
//	cat event.json | go run ./cmd/triage/ --payload -
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/belphia/autoreply/internal/agentmail"
	"github.com/belphia/autoreply/internal/config"
	"github.com/belphia/autoreply/internal/dedup"
	"github.com/belphia/autoreply/internal/models"
	"github.com/belphia/autoreply/internal/triage"
)

// preview is the dry-run report.
type preview struct {
	Eligible bool     `json:"eligible"`
	Reason   string   `json:"reason,omitempty"`
	To       string   `json:"to,omitempty"`
	Name     string   `json:"name,omitempty"`
	Category string   `json:"category,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Headers  *headers `json:"headers,omitempty"`
	Body     string   `json:"body,omitempty"`
}

type headers struct {
	InReplyTo  string `json:"in_reply_to,omitempty"`
	References string `json:"references,omitempty"`
}

// result is the report after a real dispatch.
type result struct {
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
	Failure           string `json:"failure,omitempty"`
	Category          string `json:"category,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	payloadFlag := flag.String("payload", "", "Path to a webhook payload JSON file, or - for stdin (required)")
	sendFlag := flag.Bool("send", false, "Dispatch the reply instead of printing it")
	flag.Parse()

	if *payloadFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --payload is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	raw, err := readPayload(*payloadFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	composerCfg, err := cfg.Reply.ComposerConfig()
	if err != nil {
		slog.Error("invalid reply configuration", "error", err)
		os.Exit(1)
	}

	classifier := triage.NewClassifier(cfg.InboxID, cfg.SystemSenderMarkers)
	composer := triage.NewComposer(composerCfg)

	if !*sendFlag {
		pipeline := triage.NewPipeline(classifier, composer, nil)
		cls, draft, err := pipeline.Preview(raw)
		if err != nil {
			slog.Error("payload rejected", "error", err)
			os.Exit(1)
		}
		printJSON(buildPreview(cls, draft))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SendTimeout+5*time.Second)
	defer cancel()

	var deduper triage.Deduper
	if cfg.DedupBackend == config.DedupRedis {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		deduper = dedup.NewRedisFilter(rdb, cfg.DedupTTL)
	} else {
		slog.Warn("replay does not share dedup state for this backend", "backend", cfg.DedupBackend)
	}

	var transport triage.Transport
	if cfg.APIKey != "" {
		transport = agentmail.NewClient(ctx, cfg.APIKey, cfg.AgentMailBaseURL, cfg.SendTimeout)
	}

	pipeline := triage.NewPipeline(classifier, composer, triage.NewCoordinator(triage.CoordinatorConfig{
		InboxID:    cfg.InboxID,
		Credential: cfg.APIKey,
		Transport:  transport,
		Dedup:      deduper,
	}))

	outcome := pipeline.Process(ctx, raw)
	printJSON(buildResult(outcome))

	if outcome.Status == models.StatusFailed {
		os.Exit(2)
	}
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload %s: %w", path, err)
	}
	return data, nil
}

func buildPreview(cls triage.Classification, draft *models.ReplyDraft) preview {
	if draft == nil {
		return preview{Reason: cls.Reason.String()}
	}
	return preview{
		Eligible: true,
		To:       cls.SenderEmail,
		Name:     cls.SenderName,
		Category: draft.Category.String(),
		Subject:  draft.Subject,
		Headers:  threading(draft),
		Body:     draft.Body,
	}
}

func threading(draft *models.ReplyDraft) *headers {
	if draft.InReplyTo == "" && draft.References == "" {
		return nil
	}
	return &headers{InReplyTo: draft.InReplyTo, References: draft.References}
}

func buildResult(o models.Outcome) result {
	r := result{
		Status:  o.Status.String(),
		Reason:  o.Reason.String(),
		Failure: o.Failure.String(),
	}
	if o.Status == models.StatusSent {
		r.Category = o.Category.String()
		r.ProviderMessageID = o.ProviderMessageID
	}
	return r
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}
