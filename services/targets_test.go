package services

import (
	"context"
	"errors"
	"testing"

	"github.com/intelsk/reid/models"
)

func TestRegisterTargetKind(t *testing.T) {
	tests := []struct {
		name     string
		draft    models.TargetDraft
		wantKind models.Kind
		wantData string
	}{
		{
			name:     "text",
			draft:    models.TargetDraft{Name: "red coat", Description: "person in a red coat"},
			wantKind: models.KindText,
			wantData: "person in a red coat",
		},
		{
			name:     "image",
			draft:    models.TargetDraft{Name: "suspect", Description: "from the lobby", ImageURL: "data:image/jpeg;base64,AAAA"},
			wantKind: models.KindImage,
			wantData: "data:image/jpeg;base64,AAAA",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			targets := NewTargetStore(backend, discardLogger())

			target, done, err := targets.RegisterTarget(context.Background(), tt.draft)
			if err != nil {
				t.Fatalf("RegisterTarget: %v", err)
			}
			if target.Registered() {
				t.Error("provisional target already registered")
			}
			if err := recv(t, done); err != nil {
				t.Fatalf("reconcile: %v", err)
			}

			calls := backend.addedCalls()
			if len(calls) != 1 {
				t.Fatalf("AddTarget called %d times", len(calls))
			}
			if calls[0].Kind != tt.wantKind || calls[0].Data != tt.wantData || calls[0].Name != tt.draft.Name {
				t.Errorf("AddTarget(%+v)", calls[0])
			}

			got, _ := targets.Get(target.LocalID)
			if got.Kind() != tt.wantKind {
				t.Errorf("Kind() = %s", got.Kind())
			}
			if id, ok := targets.BackendID(target.LocalID); !ok || id != "tgt-"+tt.draft.Name {
				t.Errorf("BackendID() = %q, %v", id, ok)
			}
		})
	}
}

func TestRegisterTargetInvalid(t *testing.T) {
	tests := []struct {
		name  string
		draft models.TargetDraft
	}{
		{"blank name", models.TargetDraft{Name: "  ", Description: "tall"}},
		{"no data", models.TargetDraft{Name: "x"}},
		{"blank description", models.TargetDraft{Name: "x", Description: "\t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			targets := NewTargetStore(backend, discardLogger())
			_, _, err := targets.RegisterTarget(context.Background(), tt.draft)
			if !errors.Is(err, ErrInvalidTarget) {
				t.Fatalf("err = %v, want ErrInvalidTarget", err)
			}
			if len(targets.All()) != 0 || len(backend.addedCalls()) != 0 {
				t.Error("invalid draft reached the store or the backend")
			}
		})
	}
}

func TestRenameTarget(t *testing.T) {
	backend := newFakeBackend()
	targets := NewTargetStore(backend, discardLogger())
	target, done, _ := targets.RegisterTarget(context.Background(), models.TargetDraft{
		Name: "old", ImageURL: "data:image/png;base64,AAAA",
	})
	recv(t, done)

	if err := targets.RenameTarget(target.LocalID, " new "); err != nil {
		t.Fatalf("RenameTarget: %v", err)
	}
	got, _ := targets.Get(target.LocalID)
	if got.Name != "new" || got.Kind() != models.KindImage || got.BackendID != "tgt-old" {
		t.Errorf("after rename: %+v", got)
	}
	if len(backend.addedCalls()) != 1 {
		t.Error("rename re-registered the target")
	}

	if err := targets.RenameTarget(target.LocalID, ""); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("blank rename: %v", err)
	}
	if err := targets.RenameTarget("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rename missing: %v", err)
	}
}

func TestUpdateDescription(t *testing.T) {
	backend := newFakeBackend()
	targets := NewTargetStore(backend, discardLogger())
	target, done, _ := targets.RegisterTarget(context.Background(), models.TargetDraft{
		Name: "t", Description: "blue jeans",
	})
	recv(t, done)

	if err := targets.UpdateDescription(target.LocalID, "black jeans"); err != nil {
		t.Fatal(err)
	}
	got, _ := targets.Get(target.LocalID)
	if got.Description != "black jeans" || got.BackendID != "tgt-t" {
		t.Errorf("after update: %+v", got)
	}
	if err := targets.UpdateDescription("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: %v", err)
	}
}

func TestRegisterTargetDeletedWhileRegistering(t *testing.T) {
	backend := newFakeBackend()
	targets := NewTargetStore(backend, discardLogger())

	backend.hold()
	target, done, err := targets.RegisterTarget(context.Background(), models.TargetDraft{Name: "t", Description: "d"})
	if err != nil {
		t.Fatal(err)
	}
	if !targets.DeleteTarget(target.LocalID) {
		t.Fatal("DeleteTarget() = false")
	}
	if targets.DeleteTarget(target.LocalID) {
		t.Error("second DeleteTarget() = true")
	}
	backend.release()

	if err := recv(t, done); !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("reconcile err = %v, want ErrStaleResponse", err)
	}
	if len(targets.All()) != 0 {
		t.Errorf("deleted target was revived: %+v", targets.All())
	}
	if _, ok := targets.ByBackendID("tgt-t"); ok {
		t.Error("discarded backend id is visible")
	}
}

func TestRegisterTargetBackendFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.addErr = errBackendDown
	targets := NewTargetStore(backend, discardLogger())

	target, done, _ := targets.RegisterTarget(context.Background(), models.TargetDraft{Name: "t", Description: "d"})
	if err := recv(t, done); !errors.Is(err, errBackendDown) {
		t.Fatalf("reconcile err = %v", err)
	}
	got, ok := targets.Get(target.LocalID)
	if !ok || got != target {
		t.Errorf("failed target = %+v, %v; want untouched %+v", got, ok, target)
	}
	if reg, _ := targets.Registration(target.LocalID); reg.State != models.StateFailed {
		t.Errorf("registration state = %s", reg.State)
	}
}
