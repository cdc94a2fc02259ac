package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/settings"
)

type Settings struct {
	mu   sync.RWMutex
	rows map[string]domain.Setting
}

func NewSettings() *Settings {
	return &Settings{rows: make(map[string]domain.Setting)}
}

func (s *Settings) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return row.Value, nil
}

func (s *Settings) All(_ context.Context) ([]domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Setting, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Settings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := domain.Setting{Key: key, Value: value}
	touch(&row.UpdatedAt)
	s.rows[key] = row
	return nil
}

var _ settings.Repository = (*Settings)(nil)
