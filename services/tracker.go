package services

import (
	"errors"
	"sync"
	"time"

	"github.com/intelsk/reid/models"
)

// RegistrationTracker records the outcome of the asynchronous half of each
// registration so the UI can report pending and failed entities. It is kept
// apart from the entities so a failed call leaves the entity untouched.
type RegistrationTracker struct {
	mu      sync.RWMutex
	entries map[string]*models.Registration
}

func NewRegistrationTracker() *RegistrationTracker {
	return &RegistrationTracker{entries: make(map[string]*models.Registration)}
}

func (t *RegistrationTracker) Start(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[localID] = &models.Registration{
		LocalID:   localID,
		State:     models.StatePending,
		StartedAt: time.Now(),
	}
}

// Finish records the outcome of a registration started with Start.
func (t *RegistrationTracker) Finish(localID string, err error) models.RegistrationState {
	state := models.StateReady
	switch {
	case errors.Is(err, ErrStaleResponse):
		state = models.StateDiscarded
	case err != nil:
		state = models.StateFailed
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	reg, ok := t.entries[localID]
	if !ok {
		// forgotten after a delete
		return state
	}
	now := time.Now()
	reg.State = state
	reg.FinishedAt = &now
	if err != nil {
		reg.Error = err.Error()
	}
	return state
}

func (t *RegistrationTracker) Get(localID string) (models.Registration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reg, ok := t.entries[localID]
	if !ok {
		return models.Registration{}, false
	}
	return *reg, true
}

func (t *RegistrationTracker) Forget(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, localID)
}
