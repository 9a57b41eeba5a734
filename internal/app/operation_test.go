package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name   string
		opName string
		now    time.Time
		wantID string
	}{
		{
			name:   "utc start",
			opName: "Sync",
			now:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			wantID: "20240115T103000Z",
		},
		{
			name:   "local start is normalized",
			opName: "AttachAdd",
			now:    time.Date(2024, 1, 15, 12, 30, 0, 0, time.FixedZone("EET", 2*60*60)),
			wantID: "20240115T103000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.opName, tt.now)

			if op.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", op.ID, tt.wantID)
			}
			if op.Name != tt.opName {
				t.Errorf("Name = %q, want %q", op.Name, tt.opName)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if op.Failed() {
				t.Error("Failed() = true for a new operation")
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantFailed bool
		wantError  string
	}{
		{name: "nil error is ignored", err: nil, wantFailed: false},
		{name: "error marks failure", err: errors.New("push rejected"), wantFailed: true, wantError: "push rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Sync", time.Now())
			op.Fail(tt.err)

			if got := op.Failed(); got != tt.wantFailed {
				t.Errorf("Failed() = %v, want %v", got, tt.wantFailed)
			}
			if op.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", op.Error, tt.wantError)
			}
		})
	}
}

func TestOperation_Elapsed(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	op := NewOperation("Watch", start)

	if got := op.Elapsed(start.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Elapsed() = %v, want 1m30s", got)
	}
}
