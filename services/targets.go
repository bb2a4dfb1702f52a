package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/intelsk/reid/models"
)

// TargetStore holds the targets of the session. A target is usable in a
// search only once the backend has assigned it a backend id.
type TargetStore struct {
	store   *EntityStore[models.Target]
	gateway Gateway
	tracker *RegistrationTracker
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewTargetStore(gateway Gateway, logger *slog.Logger) *TargetStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TargetStore{
		store:   NewEntityStore(func(t models.Target) string { return t.LocalID }),
		gateway: gateway,
		tracker: NewRegistrationTracker(),
		log:     logger.With("store", "targets"),
	}
	s.store.Subscribe(func(_, next []models.Target) {
		StoreEntities.WithLabelValues("targets").Set(float64(len(next)))
	})
	return s
}

func validateDraft(d models.TargetDraft) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTarget)
	}
	if d.ImageURL == "" && strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: image or description is required", ErrInvalidTarget)
	}
	return nil
}

// RegisterTarget inserts a provisional target and registers it with the
// backend. The kind sent is derived from the draft: image when ImageURL is
// set, text otherwise. The returned channel behaves as in
// VideoStore.RegisterVideo.
func (s *TargetStore) RegisterTarget(ctx context.Context, draft models.TargetDraft) (models.Target, <-chan error, error) {
	if err := validateDraft(draft); err != nil {
		return models.Target{}, nil, err
	}

	target := models.Target{
		LocalID:     uuid.NewString(),
		Name:        strings.TrimSpace(draft.Name),
		Description: draft.Description,
		ImageURL:    draft.ImageURL,
	}
	if err := s.store.Add(target); err != nil {
		return models.Target{}, nil, err
	}
	s.tracker.Start(target.LocalID)
	s.log.Info("target registered", "local_id", target.LocalID, "name", target.Name, "kind", target.Kind())

	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		done <- s.reconcile(context.WithoutCancel(ctx), target)
	}()
	return target, done, nil
}

func (s *TargetStore) reconcile(ctx context.Context, target models.Target) error {
	backendID, err := s.gateway.AddTarget(ctx, target.Kind(), target.Payload(), target.Name)
	if err != nil {
		err = fmt.Errorf("registering target %s: %w", target.Name, err)
		s.log.Error("target registration failed", "local_id", target.LocalID, "error", err)
	} else if !s.store.Update(target.LocalID, func(t *models.Target) { t.BackendID = backendID }) {
		err = fmt.Errorf("target %s: %w", target.LocalID, ErrStaleResponse)
		s.log.Warn("discarding target registration", "local_id", target.LocalID, "backend_id", backendID)
	} else {
		s.log.Info("target ready", "local_id", target.LocalID, "backend_id", backendID)
	}
	state := s.tracker.Finish(target.LocalID, err)
	ReconciliationsTotal.WithLabelValues("target", string(state)).Inc()
	return err
}

// RenameTarget changes the display name only.
func (s *TargetStore) RenameTarget(localID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTarget)
	}
	if !s.store.Update(localID, func(t *models.Target) { t.Name = name }) {
		return fmt.Errorf("target %s: %w", localID, ErrNotFound)
	}
	return nil
}

// UpdateDescription edits the local description. The backend keeps the
// embedding computed at registration time.
func (s *TargetStore) UpdateDescription(localID, description string) error {
	if !s.store.Update(localID, func(t *models.Target) { t.Description = description }) {
		return fmt.Errorf("target %s: %w", localID, ErrNotFound)
	}
	return nil
}

// DeleteTarget removes the target locally. The backend registration and any
// results indexed under its backend id are left in place.
func (s *TargetStore) DeleteTarget(localID string) bool {
	ok := s.store.Remove(localID)
	if ok {
		s.tracker.Forget(localID)
	}
	return ok
}

func (s *TargetStore) Get(localID string) (models.Target, bool) {
	return s.store.Get(localID)
}

func (s *TargetStore) All() []models.Target {
	return s.store.All()
}

func (s *TargetStore) BackendID(localID string) (string, bool) {
	t, ok := s.store.Get(localID)
	if !ok || !t.Registered() {
		return "", false
	}
	return t.BackendID, true
}

// ByBackendID finds the target registered under backendID.
func (s *TargetStore) ByBackendID(backendID string) (models.Target, bool) {
	for _, t := range s.store.All() {
		if t.BackendID == backendID {
			return t, true
		}
	}
	return models.Target{}, false
}

func (s *TargetStore) Registration(localID string) (models.Registration, bool) {
	return s.tracker.Get(localID)
}

func (s *TargetStore) Subscribe(fn func(prev, next []models.Target)) func() {
	return s.store.Subscribe(fn)
}

func (s *TargetStore) Wait() {
	s.wg.Wait()
}
