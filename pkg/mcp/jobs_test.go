package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestJob(t *testing.T, jm *JobManager, key string) *Job {
	t.Helper()
	job, _ := jm.CreateJob(JobKindDepthCrawl, key, 3)
	require.NotNil(t, job)
	return job
}

func TestNewJobManager(t *testing.T) {
	jm := NewJobManager()
	require.NotNil(t, jm)
	assert.Empty(t, jm.ListJobs())
}

func TestCreateJob(t *testing.T) {
	t.Run("new job fields correct", func(t *testing.T) {
		jm := NewJobManager()
		job, created := jm.CreateJob(JobKindCollect, "collect:baidu/西昌", 2)

		assert.True(t, created)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, JobKindCollect, job.Kind)
		assert.Equal(t, "collect:baidu/西昌", job.Key)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, 2, job.Total)
		assert.False(t, job.StartedAt.IsZero())
		assert.True(t, job.CompletedAt.IsZero())
		assert.Zero(t, job.Processed)
		assert.Empty(t, job.ErrorMessage)
	})

	t.Run("duplicate active key returns same job", func(t *testing.T) {
		jm := NewJobManager()
		job1 := createTestJob(t, jm, "depth:a,b")
		job2, created := jm.CreateJob(JobKindDepthCrawl, "depth:a,b", 2)
		assert.False(t, created)
		assert.Equal(t, job1.ID, job2.ID)
	})

	t.Run("new job allowed after completion", func(t *testing.T) {
		jm := NewJobManager()
		job1 := createTestJob(t, jm, "depth:a")
		jm.UpdateStatus(job1.ID, JobStatusCompleted, "")

		job2 := createTestJob(t, jm, "depth:a")
		assert.NotEqual(t, job1.ID, job2.ID)
	})

	t.Run("different keys independent", func(t *testing.T) {
		jm := NewJobManager()
		job1 := createTestJob(t, jm, "depth:a")
		job2 := createTestJob(t, jm, "depth:b")
		assert.NotEqual(t, job1.ID, job2.ID)
	})
}

func TestGetJob(t *testing.T) {
	jm := NewJobManager()

	t.Run("exists returns job", func(t *testing.T) {
		job := createTestJob(t, jm, "depth:a")
		got := jm.GetJob(job.ID)
		require.NotNil(t, got)
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("missing returns nil", func(t *testing.T) {
		assert.Nil(t, jm.GetJob("nonexistent-id"))
	})

	t.Run("returned job is a copy", func(t *testing.T) {
		job := createTestJob(t, jm, "depth:copy")
		got := jm.GetJob(job.ID)
		got.Status = JobStatusFailed
		assert.Equal(t, JobStatusPending, jm.GetJob(job.ID).Status)
	})
}

func TestGetJobByKey(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "depth:a")

	got := jm.GetJobByKey("depth:a")
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Nil(t, jm.GetJobByKey("depth:other"))

	jm.UpdateStatus(job.ID, JobStatusCompleted, "")
	assert.Nil(t, jm.GetJobByKey("depth:a"), "finished jobs release their key")
}

func TestIsRunning(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "depth:a")
	assert.True(t, jm.IsRunning("depth:a"), "pending counts as running")

	jm.UpdateStatus(job.ID, JobStatusRunning, "")
	assert.True(t, jm.IsRunning("depth:a"))

	jm.UpdateStatus(job.ID, JobStatusFailed, "boom")
	assert.False(t, jm.IsRunning("depth:a"))
	assert.False(t, jm.IsRunning("never"))
}

func TestUpdateStatus(t *testing.T) {
	t.Run("terminal status sets completion and cancels context", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "depth:a")
		ctx := jm.GetContext(job.ID)

		jm.UpdateStatus(job.ID, JobStatusFailed, "boom")

		got := jm.GetJob(job.ID)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.Equal(t, "boom", got.ErrorMessage)
		assert.False(t, got.CompletedAt.IsZero())
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("cancelled job keeps its status", func(t *testing.T) {
		jm := NewJobManager()
		job := createTestJob(t, jm, "depth:a")
		require.True(t, jm.CancelJob(job.ID))

		jm.UpdateStatus(job.ID, JobStatusCompleted, "")
		assert.Equal(t, JobStatusCancelled, jm.GetJob(job.ID).Status)
	})

	t.Run("unknown job ignored", func(t *testing.T) {
		jm := NewJobManager()
		assert.NotPanics(t, func() { jm.UpdateStatus("missing", JobStatusCompleted, "") })
	})
}

func TestUpdateProgress(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "depth:a")

	jm.UpdateProgress(job.ID, 2, 0)
	jm.UpdateProgress(job.ID, 0, 1)

	got := jm.GetJob(job.ID)
	assert.Equal(t, 2, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 3, got.Processed)
}

func TestSetResult(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "depth:a")
	jm.SetResult(job.ID, map[string]int{"saved": 4})
	assert.Equal(t, map[string]int{"saved": 4}, jm.GetJob(job.ID).Result)
}

func TestCancelJob(t *testing.T) {
	jm := NewJobManager()
	job := createTestJob(t, jm, "depth:a")
	ctx := jm.GetContext(job.ID)

	assert.True(t, jm.CancelJob(job.ID))
	assert.Equal(t, JobStatusCancelled, jm.GetJob(job.ID).Status)
	assert.Error(t, ctx.Err())
	assert.False(t, jm.IsRunning("depth:a"))

	assert.False(t, jm.CancelJob(job.ID), "second cancel is a no-op")
	assert.False(t, jm.CancelJob("missing"))
}

func TestCancelAll(t *testing.T) {
	jm := NewJobManager()
	a := createTestJob(t, jm, "depth:a")
	b := createTestJob(t, jm, "depth:b")
	done := createTestJob(t, jm, "depth:c")
	jm.UpdateStatus(done.ID, JobStatusCompleted, "")

	jm.CancelAll()

	assert.Equal(t, JobStatusCancelled, jm.GetJob(a.ID).Status)
	assert.Equal(t, JobStatusCancelled, jm.GetJob(b.ID).Status)
	assert.Equal(t, JobStatusCompleted, jm.GetJob(done.ID).Status)
	assert.Len(t, jm.ListJobs(), 3)
}

func TestGetContext_Unknown(t *testing.T) {
	jm := NewJobManager()
	ctx := jm.GetContext("missing")
	require.NotNil(t, ctx)
	assert.NoError(t, ctx.Err())
}
