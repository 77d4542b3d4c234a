package mirror

import (
	"fmt"
	"sync"

	"github.com/alejandrodnm/copybot/internal/domain"
)

// SettingsStore guarda la configuración compartida entre el tick y los
// handlers HTTP. Un solo escritor, múltiples lectores; el valor se reemplaza
// entero en cada Apply.
type SettingsStore struct {
	mu       sync.RWMutex
	settings domain.Settings
}

// NewSettingsStore valida la configuración inicial.
func NewSettingsStore(initial domain.Settings) (*SettingsStore, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("mirror.NewSettingsStore: %w", err)
	}
	return &SettingsStore{settings: initial}, nil
}

// Get devuelve una copia de la configuración actual.
func (s *SettingsStore) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Apply aplica el patch de forma atómica. Si el resultado no valida, la
// configuración previa queda intacta y se devuelve el error.
func (s *SettingsStore) Apply(patch domain.SettingsPatch) (prev, next domain.Settings, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.settings
	next = patch.ApplyTo(prev)
	if err := next.Validate(); err != nil {
		return prev, prev, err
	}
	s.settings = next
	return prev, next, nil
}
