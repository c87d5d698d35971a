package job_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaforge/features/job"
	"qaforge/internal/config"
	"qaforge/internal/testutils"
)

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := job.NewPostgresRepo(s.DB)
	ctx := context.Background()

	j1 := &job.Job{Topic: config.TopicBuild, Payload: json.RawMessage(`{"clear_existing":true}`), Error: "index failure"}
	require.NoError(t, repo.Save(ctx, j1))
	assert.NotEmpty(t, j1.ID)

	j2 := &job.Job{Topic: config.TopicBuild, Payload: json.RawMessage(`{}`), Error: "embedding failure"}
	require.NoError(t, repo.Save(ctx, j2))

	jobs, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	other, err := repo.List(ctx, "kb.other")
	require.NoError(t, err)
	assert.Empty(t, other)

	got, err := repo.Get(ctx, j1.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clear_existing":true}`, string(got.Payload))

	require.NoError(t, repo.Delete(ctx, j1.ID))
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
