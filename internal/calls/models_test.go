package calls

import "testing"

func TestCallStatus_CanTrigger(t *testing.T) {
	cases := []struct {
		status CallStatus
		want   bool
	}{
		{CallStatusUploaded, true},
		{CallStatusFailed, true},
		{CallStatusProcessing, false},
		{CallStatusTranscribing, false},
		{CallStatusExtracting, false},
		{CallStatusCompleted, true},
	}
	for _, tc := range cases {
		if got := tc.status.CanTrigger(); got != tc.want {
			t.Fatalf("CanTrigger(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestCallStatus_IsTerminal(t *testing.T) {
	if !CallStatusCompleted.IsTerminal() || !CallStatusFailed.IsTerminal() {
		t.Fatalf("completed and failed must be terminal")
	}
	if CallStatusTranscribing.IsTerminal() {
		t.Fatalf("transcribing must not be terminal")
	}
}
