package tokenstore

import (
	"sync"

	"github.com/nkiryanov/eazynet/internal/models"
)

type Memory struct {
	mu   sync.RWMutex
	pair models.TokenPair
}

func NewMemory(pair models.TokenPair) *Memory {
	return &Memory{pair: pair}
}

func (m *Memory) Load() (models.TokenPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, nil
}

func (m *Memory) Save(pair models.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = pair
	return nil
}

func (m *Memory) ClearAccess() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair.Access = ""
	return nil
}

func (m *Memory) Clear() error {
	return m.Save(models.TokenPair{})
}
