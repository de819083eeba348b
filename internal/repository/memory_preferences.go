package repository

import (
	"context"
	"maps"
	"slices"
	"sync"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
)

// MemoryPreferences keeps preferences for the life of the process.
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs *models.Preferences
}

func NewMemoryPreferences() repository.PreferenceStore {
	return &MemoryPreferences{}
}

func (m *MemoryPreferences) Load(context.Context) (models.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prefs == nil {
		return models.Preferences{}, models.ErrNotFound
	}
	return clonePrefs(*m.prefs), nil
}

func (m *MemoryPreferences) Save(_ context.Context, p models.Preferences) error {
	c := clonePrefs(p)
	m.mu.Lock()
	m.prefs = &c
	m.mu.Unlock()
	return nil
}

func (m *MemoryPreferences) Close() error { return nil }

func clonePrefs(p models.Preferences) models.Preferences {
	p.Watchlist = slices.Clone(p.Watchlist)
	p.SymbolOverrides = maps.Clone(p.SymbolOverrides)
	return p
}
