// Package store provides RunStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/authz-report/recon"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	runs      map[string]recon.Run
	artifacts map[string]recon.Artifact
}

func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[string]recon.Run),
		artifacts: make(map[string]recon.Artifact),
	}
}

// SaveRun inserts or replaces a run.
func (m *Memory) SaveRun(_ context.Context, run recon.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*recon.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, recon.ErrRunNotFound
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (m *Memory) ListRuns(_ context.Context, status recon.RunStatus, limit int) ([]recon.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []recon.Run
	for _, run := range m.runs {
		if status == "" || run.Status == status {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) SaveArtifact(_ context.Context, a recon.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[a.RunID]; !ok {
		return recon.ErrRunNotFound
	}
	a.Data = append([]byte(nil), a.Data...)
	m.artifacts[a.RunID] = a
	return nil
}

func (m *Memory) GetArtifact(_ context.Context, runID string) (*recon.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.artifacts[runID]
	if !ok {
		return nil, recon.ErrArtifactNotFound
	}
	return &a, nil
}
