package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"courserag/internal/models"
)

// MemStore is an in-memory MaterialStore + HistoryStore for tests and demos.
type MemStore struct {
	mu        sync.RWMutex
	courses   map[string]models.Course
	materials map[string]models.Material
	history   []models.QueryHistoryEntry
	onChange  ChangeHook
}

func NewMem() *MemStore {
	return &MemStore{
		courses:   make(map[string]models.Course),
		materials: make(map[string]models.Material),
	}
}

// OnChange registers the hook fired after material upserts/deletes.
func (s *MemStore) OnChange(h ChangeHook) {
	s.mu.Lock()
	s.onChange = h
	s.mu.Unlock()
}

func (s *MemStore) UpsertCourse(ctx context.Context, c models.Course) error {
	s.mu.Lock()
	s.courses[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemStore) GetCourse(ctx context.Context, id string) (models.Course, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	return c, ok, nil
}

func (s *MemStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) UpsertMaterial(ctx context.Context, m models.Material) error {
	s.mu.Lock()
	if m.Created.IsZero() {
		m.Created = time.Now()
	}
	m.Updated = time.Now()
	s.materials[m.ID] = m
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook(m.CourseID)
	}
	return nil
}

func (s *MemStore) DeleteMaterial(ctx context.Context, id string) error {
	s.mu.Lock()
	m, ok := s.materials[id]
	delete(s.materials, id)
	hook := s.onChange
	s.mu.Unlock()
	if ok && hook != nil {
		hook(m.CourseID)
	}
	return nil
}

func (s *MemStore) GetMaterial(ctx context.Context, id string) (models.Material, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.materials[id]
	return m, ok, nil
}

// GetMaterials returns materials for a course (or all when courseID is
// empty), ordered by id for deterministic downstream ranking.
func (s *MemStore) GetMaterials(ctx context.Context, courseID string) ([]models.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Material, 0, len(s.materials))
	for _, m := range s.materials {
		if courseID != "" && m.CourseID != courseID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) RecordQuery(ctx context.Context, e models.QueryHistoryEntry) error {
	s.mu.Lock()
	if e.AskedAt.IsZero() {
		e.AskedAt = time.Now()
	}
	s.history = append(s.history, e)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) RecentQueries(ctx context.Context, userID, courseID string, limit int) ([]models.QueryHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.QueryHistoryEntry, 0, limit)
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if userID != "" && e.UserID != userID {
			continue
		}
		if courseID != "" && e.CourseID != courseID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
