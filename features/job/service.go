package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"qaforge/internal/config"
)

var ErrInvalidPayload = errors.New("stored payload is not valid JSON")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo Repository
	pub  EventPublisher
}

func NewService(repo Repository, pub EventPublisher) *Service {
	return &Service{repo: repo, pub: pub}
}

// Record stores a failed message so it can be inspected and retried.
func (s *Service) Record(ctx context.Context, topic string, payload []byte, cause error) error {
	j := &Job{Topic: topic, Payload: json.RawMessage(payload), Error: cause.Error()}
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(payload))
		j.Payload = raw
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	slog.WarnContext(ctx, "job recorded as failed", "id", j.ID, "topic", topic, "error", cause)
	return nil
}

func (s *Service) List(ctx context.Context, topic string) ([]Job, error) {
	return s.repo.List(ctx, topic)
}

// Retry republishes the stored payload and removes the job once the broker
// has accepted it.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !json.Valid(job.Payload) {
		return fmt.Errorf("%w: job %s", ErrInvalidPayload, id)
	}
	if s.pub == nil {
		return errors.New("queue is not configured")
	}

	topic := job.Topic
	if topic == "" {
		topic = config.TopicBuild
	}

	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(topic, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
