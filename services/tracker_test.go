package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/intelsk/reid/models"
)

func TestRegistrationTracker(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		state models.RegistrationState
	}{
		{"success", nil, models.StateReady},
		{"backend failure", errors.New("boom"), models.StateFailed},
		{"stale response", fmt.Errorf("video x: %w", ErrStaleResponse), models.StateDiscarded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewRegistrationTracker()
			tr.Start("id")
			reg, ok := tr.Get("id")
			if !ok || reg.State != models.StatePending {
				t.Fatalf("after Start: %+v, %v", reg, ok)
			}

			if got := tr.Finish("id", tt.err); got != tt.state {
				t.Errorf("Finish() = %s, want %s", got, tt.state)
			}
			reg, _ = tr.Get("id")
			if reg.State != tt.state || reg.FinishedAt == nil {
				t.Errorf("registration = %+v", reg)
			}
			if (tt.err != nil) != (reg.Error != "") {
				t.Errorf("Error = %q for err %v", reg.Error, tt.err)
			}
		})
	}
}

func TestRegistrationTrackerForget(t *testing.T) {
	tr := NewRegistrationTracker()
	tr.Start("id")
	tr.Forget("id")

	if got := tr.Finish("id", ErrStaleResponse); got != models.StateDiscarded {
		t.Errorf("Finish() = %s", got)
	}
	if _, ok := tr.Get("id"); ok {
		t.Error("Finish recreated a forgotten registration")
	}
}
