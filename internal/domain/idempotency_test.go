package domain

import "testing"

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordReplayable(t *testing.T) {
	processing := IdempotencyRecord{Status: IdempotencyStatusProcessing}
	if processing.Replayable() {
		t.Fatal("processing record must not be replayable")
	}

	done := IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 201}
	if !done.Replayable() {
		t.Fatal("done record with stored status must be replayable")
	}

	failed := IdempotencyRecord{Status: IdempotencyStatusFailed, HTTPStatus: 422}
	if !failed.Replayable() {
		t.Fatal("failed record with stored status must be replayable")
	}
}
