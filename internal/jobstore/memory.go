package jobstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/trunov/csvimages/internal/entities"
)

// Memory is a process local job store for single instance deployments and
// tests. Its contents are lost on restart.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]entities.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]entities.Job)}
}

func (m *Memory) Save(_ context.Context, job entities.Job) error {
	m.mu.Lock()
	m.jobs[job.RequestID] = job
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, requestID string) (entities.Job, error) {
	m.mu.RLock()
	job, ok := m.jobs[requestID]
	m.mu.RUnlock()
	if !ok {
		return entities.Job{}, fmt.Errorf("%s: %w", requestID, entities.ErrJobNotFound)
	}
	return job, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
