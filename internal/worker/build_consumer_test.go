package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"qaforge/features/knowledge"
	"qaforge/internal/config"
	"qaforge/internal/middleware"
	"qaforge/internal/worker"
)

type MockBuilder struct {
	mock.Mock
}

func (m *MockBuilder) Build(ctx context.Context, clearExisting bool) (*knowledge.BuildResult, error) {
	args := m.Called(ctx, clearExisting)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*knowledge.BuildResult), args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, topic string, payload []byte, cause error) error {
	return m.Called(ctx, topic, payload, cause).Error(0)
}

func TestBuildConsumer_HandleMessage(t *testing.T) {
	b := new(MockBuilder)
	r := new(MockRecorder)
	consumer := worker.NewBuildConsumer(b, r, 3)

	b.On("Build", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.GetCorrelationID(ctx) == "corr-1"
	}), true).Return(&knowledge.BuildResult{Success: true, TotalDocuments: 2, TotalChunks: 9}, nil)

	msg := &nsq.Message{Body: []byte(`{"clear_existing":true,"correlation_id":"corr-1"}`), Attempts: 1}

	assert.NoError(t, consumer.HandleMessage(msg))
	b.AssertExpectations(t)
	r.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildConsumer_EmptyBody(t *testing.T) {
	b := new(MockBuilder)
	consumer := worker.NewBuildConsumer(b, nil, 3)

	assert.NoError(t, consumer.HandleMessage(&nsq.Message{}))
	b.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
}

func TestBuildConsumer_PoisonPill(t *testing.T) {
	b := new(MockBuilder)
	r := new(MockRecorder)
	consumer := worker.NewBuildConsumer(b, r, 3)

	r.On("Record", mock.Anything, config.TopicBuild, []byte("invalid json"), mock.Anything).Return(nil)

	err := consumer.HandleMessage(&nsq.Message{Body: []byte("invalid json")})

	assert.NoError(t, err)
	r.AssertExpectations(t)
	b.AssertNotCalled(t, "Build", mock.Anything, mock.Anything)
}

func TestBuildConsumer_Failure(t *testing.T) {
	buildErr := errors.New("embedding failure")

	t.Run("Requeues Before Last Attempt", func(t *testing.T) {
		b := new(MockBuilder)
		r := new(MockRecorder)
		consumer := worker.NewBuildConsumer(b, r, 3)
		b.On("Build", mock.Anything, false).Return(nil, buildErr)

		err := consumer.HandleMessage(&nsq.Message{Body: []byte(`{}`), Attempts: 1})

		assert.ErrorIs(t, err, buildErr)
		r.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Parks On Last Attempt", func(t *testing.T) {
		b := new(MockBuilder)
		r := new(MockRecorder)
		consumer := worker.NewBuildConsumer(b, r, 3)
		b.On("Build", mock.Anything, false).Return(nil, buildErr)
		r.On("Record", mock.Anything, config.TopicBuild, []byte(`{}`), buildErr).Return(nil)

		err := consumer.HandleMessage(&nsq.Message{Body: []byte(`{}`), Attempts: 3})

		assert.NoError(t, err)
		r.AssertExpectations(t)
	})

	t.Run("Record Error Is Swallowed", func(t *testing.T) {
		b := new(MockBuilder)
		r := new(MockRecorder)
		consumer := worker.NewBuildConsumer(b, r, 1)
		b.On("Build", mock.Anything, false).Return(nil, buildErr)
		r.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

		assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: []byte(`{}`), Attempts: 1}))
	})
}
