package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a background job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobKind names what a job does
type JobKind string

const (
	JobKindDepthCrawl JobKind = "depth_crawl"
	JobKindCollect    JobKind = "collect_keywords"
)

// Job represents a background batch
type Job struct {
	ID           string    `json:"id"`
	Kind         JobKind   `json:"kind"`
	Key          string    `json:"key"`
	Status       JobStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Result       any       `json:"result,omitempty"`

	// Internal fields
	ctx    context.Context
	cancel context.CancelFunc
}

func (j *Job) active() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// JobManager manages background jobs. An active job is reused for an identical request.
type JobManager struct {
	jobs  map[string]*Job
	mu    sync.RWMutex
	bykey map[string]string // key -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:  make(map[string]*Job),
		bykey: make(map[string]string),
	}
}

// CreateJob registers a pending job. When an active job has the same key it is returned
// instead and created is false.
func (m *JobManager) CreateJob(kind JobKind, key string, total int) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.bykey[key]; ok {
		if existing := m.jobs[existingID]; existing != nil && existing.active() {
			return existing.snapshot(), false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Key:       key,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Total:     total,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.bykey[key] = j.ID
	return j.snapshot(), true
}

// snapshot copies the exported fields so callers never race with updates
func (j *Job) snapshot() *Job {
	c := *j
	c.ctx, c.cancel = nil, nil
	return &c
}

// GetJob returns a copy of the job, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[jobID]; ok {
		return job.snapshot()
	}
	return nil
}

// GetJobByKey returns the active job for key, or nil
func (m *JobManager) GetJobByKey(key string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, ok := m.bykey[key]; ok {
		if job := m.jobs[jobID]; job != nil {
			return job.snapshot()
		}
	}
	return nil
}

// IsRunning checks if an active job exists for key
func (m *JobManager) IsRunning(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if jobID, ok := m.bykey[key]; ok {
		job := m.jobs[jobID]
		return job != nil && job.active()
	}
	return false
}

// UpdateStatus updates the status of a job. A cancelled job keeps its status.
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status == JobStatusCancelled {
		return
	}
	job.Status = status
	if !job.active() {
		job.CompletedAt = time.Now()
		delete(m.bykey, job.Key)
		job.cancel()
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// UpdateProgress adds the outcome of a processed chunk to the job counters
func (m *JobManager) UpdateProgress(jobID string, succeeded, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.Succeeded += succeeded
		job.Failed += failed
		job.Processed = job.Succeeded + job.Failed
	}
}

// SetResult attaches the final report of a job
func (m *JobManager) SetResult(jobID string, result any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.Result = result
	}
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok && job.active() {
		job.cancel()
		job.Status = JobStatusCancelled
		job.CompletedAt = time.Now()
		delete(m.bykey, job.Key)
		return true
	}
	return false
}

// CancelAll cancels all active jobs
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.active() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.bykey = make(map[string]string)
}

// ListJobs returns copies of all jobs
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	return jobs
}

// GetContext returns the context a job runs under
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, ok := m.jobs[jobID]; ok {
		return job.ctx
	}
	return context.Background()
}
