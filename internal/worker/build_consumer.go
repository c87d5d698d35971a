// Package worker consumes queued knowledge base builds from NSQ.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"qaforge/features/knowledge"
	"qaforge/internal/config"
	"qaforge/internal/middleware"
)

// DefaultMaxAttempts is how often a build is requeued before it is parked in
// failed_jobs.
const DefaultMaxAttempts = 3

const buildTimeout = 30 * time.Minute

type Builder interface {
	Build(ctx context.Context, clearExisting bool) (*knowledge.BuildResult, error)
}

type FailureRecorder interface {
	Record(ctx context.Context, topic string, payload []byte, cause error) error
}

type BuildConsumer struct {
	builder     Builder
	failures    FailureRecorder
	maxAttempts uint16
}

func NewBuildConsumer(b Builder, f FailureRecorder, maxAttempts uint16) *BuildConsumer {
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &BuildConsumer{builder: b, failures: f, maxAttempts: maxAttempts}
}

func (h *BuildConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task knowledge.BuildTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison pill: invalid JSON is never retried.
		slog.Error("poison pill: invalid json", "error", err)
		h.record(context.Background(), m.Body, err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	buildCtx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	slog.InfoContext(ctx, "knowledge base build started", "clear_existing", task.ClearExisting, "attempt", m.Attempts)

	res, err := h.builder.Build(buildCtx, task.ClearExisting)
	if err != nil {
		if m.Attempts < h.maxAttempts {
			slog.WarnContext(ctx, "knowledge base build failed, requeueing", "attempt", m.Attempts, "error", err)
			return err
		}
		slog.ErrorContext(ctx, "knowledge base build failed, giving up", "attempt", m.Attempts, "error", err)
		h.record(ctx, m.Body, err)
		return nil
	}

	if len(res.Failed) > 0 {
		slog.WarnContext(ctx, "some documents could not be ingested", "failed", len(res.Failed))
	}
	slog.InfoContext(ctx, "knowledge base build finished",
		"success", res.Success,
		"documents", res.TotalDocuments,
		"chunks", res.TotalChunks,
	)
	return nil
}

func (h *BuildConsumer) record(ctx context.Context, body []byte, cause error) {
	if h.failures == nil {
		return
	}
	if err := h.failures.Record(ctx, config.TopicBuild, body, cause); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
	}
}

// NewConsumer subscribes h to the build topic with one message in flight,
// matching the index's single-writer assumption.
func NewConsumer(cfg *config.Config, h nsq.Handler) (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = 1
	nsqCfg.MaxAttempts = DefaultMaxAttempts + 1

	consumer, err := nsq.NewConsumer(config.TopicBuild, config.ChannelBuild, nsqCfg)
	if err != nil {
		return nil, err
	}
	consumer.AddHandler(h)

	if cfg.NSQLookupd != "" {
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			return nil, err
		}
		return consumer, nil
	}
	if err := consumer.ConnectToNSQD(cfg.NSQDHost); err != nil {
		return nil, err
	}
	return consumer, nil
}
