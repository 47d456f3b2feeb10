// Package memstore is the in-memory ResultStore, used for development and
// tests; it mirrors the shape of the Postgres-backed store without a
// database dependency.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ocx/inkgrade/internal/gradetypes"
	"github.com/ocx/inkgrade/internal/resultstore"
)

type userKeyLog struct {
	occurredAt time.Time
}

type Store struct {
	mu          sync.RWMutex
	byTask       map[string]*gradetypes.BatchResult
	byUserTasks  map[int64][]resultstore.HistoryEntry
	keyLogByUser map[int64][]userKeyLog
	growth       map[int64]map[string][]resultstore.GrowthPoint
}

func New() *Store {
	return &Store{
		byTask:       make(map[string]*gradetypes.BatchResult),
		byUserTasks:  make(map[int64][]resultstore.HistoryEntry),
		keyLogByUser: make(map[int64][]userKeyLog),
		growth:       make(map[int64]map[string][]resultstore.GrowthPoint),
	}
}

func (s *Store) SaveResult(_ context.Context, result *gradetypes.BatchResult, _ string, userID, _ *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *result
	s.byTask[result.TaskID] = &cp

	if userID != nil {
		s.byUserTasks[*userID] = append(s.byUserTasks[*userID], resultstore.HistoryEntry{
			TaskID:    result.TaskID,
			CreatedAt: result.CreatedAt,
			Summary:   result.SummaryComment,
		})
		for _, a := range result.Analyses {
			s.appendGrowth(*userID, a.RecognizedChar, resultstore.GrowthPoint{
				TaskID:       result.TaskID,
				OverallScore: a.OverallScore,
				CreatedAt:    result.CreatedAt,
			})
		}
	}
	return nil
}

func (s *Store) SaveSingleResult(_ context.Context, result *gradetypes.SingleCharResult, userID *int64) error {
	if userID == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendGrowth(*userID, result.RecognizedChar, resultstore.GrowthPoint{
		TaskID:       result.TaskID,
		OverallScore: result.OverallScore,
		CreatedAt:    result.CreatedAt,
	})
	return nil
}

func (s *Store) appendGrowth(userID int64, char string, pt resultstore.GrowthPoint) {
	if s.growth[userID] == nil {
		s.growth[userID] = make(map[string][]resultstore.GrowthPoint)
	}
	s.growth[userID][char] = append(s.growth[userID][char], pt)
}

func (s *Store) LogKeyUsage(_ context.Context, ev resultstore.KeyUsageEvent) error {
	return nil
}

func (s *Store) FindByTaskID(_ context.Context, taskID string) (*gradetypes.BatchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byTask[taskID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) CountRecentCalls(_ context.Context, userID int64, minutes int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	count := 0
	for _, e := range s.keyLogByUser[userID] {
		if e.occurredAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// RecordCall is test/internal-only plumbing: the real call-log source is
// t_homework rows, but memstore has no such table, so calls reach
// CountRecentCalls only through this helper; SaveResult and
// SaveSingleResult do not record them.
func (s *Store) RecordCall(userID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyLogByUser[userID] = append(s.keyLogByUser[userID], userKeyLog{occurredAt: at})
}

func (s *Store) GetGrowthCurve(_ context.Context, userID int64, char string) ([]resultstore.GrowthPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts := s.growth[userID][char]
	out := make([]resultstore.GrowthPoint, len(pts))
	copy(out, pts)
	return out, nil
}

func (s *Store) History(_ context.Context, userID int64, limit int) ([]resultstore.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := append([]resultstore.HistoryEntry(nil), s.byUserTasks[userID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt > entries[j].CreatedAt })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
