package recording

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// InboundRecording captures the subset of recording-source webhook fields
// we care about. Call platforms deliver it when a recorded call finishes
// uploading.
type InboundRecording struct {
	ExternalID   string   `json:"external_id"`
	OrgID        string   `json:"org_id"`
	UserID       string   `json:"user_id"`
	RecordingURL string   `json:"recording_url"`
	TemplateID   string   `json:"template_id,omitempty"`
	TrimStartSec *float64 `json:"trim_start_sec,omitempty"`
	TrimEndSec   *float64 `json:"trim_end_sec,omitempty"`
}

var (
	ErrBadSignature   = errors.New("recording: bad webhook signature")
	ErrInvalidPayload = errors.New("recording: invalid webhook payload")
)

// VerifySignature checks the X-Recording-Signature header: hex-encoded
// HMAC-SHA256 of the raw body under the shared secret. Returns the body so
// the caller decodes the same bytes that were verified.
func VerifySignature(r *http.Request, secret string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read webhook body: %w", err)
	}

	provided := r.Header.Get("X-Recording-Signature")
	if provided == "" {
		return nil, ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return nil, ErrBadSignature
	}
	return body, nil
}

func (p InboundRecording) Validate() error {
	if p.OrgID == "" || p.UserID == "" {
		return fmt.Errorf("%w: org_id and user_id required", ErrInvalidPayload)
	}
	if p.RecordingURL == "" {
		return fmt.Errorf("%w: recording_url required", ErrInvalidPayload)
	}
	return nil
}
