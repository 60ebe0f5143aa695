package transcription

import (
	"context"
	"errors"

	"freightcall-platform/internal/transcripts"
)

// Provider is the provider-agnostic speech-to-text contract.
//
// Rules:
// - No provider SDK/HTTP calls outside transcription adapters.
// - Submit blocks until the provider finishes or ctx is done; long jobs are
//   expected (minutes), so callers bound it with a deadline.
// - OnProgress may be invoked zero or more times before Submit returns.
//   Callbacks carry a best-effort percentage within [0,100] and a short
//   human-readable message.
type Provider interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (Result, error)
}

// ProgressFunc receives transcription progress callbacks.
type ProgressFunc func(percent int, message string)

type SubmitRequest struct {
	AudioURL string


	// Optional clip window in seconds; utterances and words outside the
	// window are discarded.
	TrimStartSec *float64
	TrimEndSec   *float64

	OnProgress ProgressFunc
}

type Result struct {
	Text       string
	Utterances []transcripts.Utterance
	Words      []Word

	AudioDurationMs int64
}

// Word is a word-level timing entry.
type Word struct {
	Word       string
	StartSec   float64
	EndSec     float64
	Confidence float64
	Speaker    string
}

var ErrProviderFailure = errors.New("transcription: provider failure")
