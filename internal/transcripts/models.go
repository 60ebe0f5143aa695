package transcripts

import "time"

// Transcript is the one-per-call transcription result.
//
// It is immutable within one processing attempt; a re-run deletes and
// replaces it wholesale.
type Transcript struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	FullText   string      `json:"full_text" db:"full_text"`
	Utterances []Utterance `json:"utterances"`

	// SpeakerRoles maps raw provider speaker ids to conversational roles.
	SpeakerRoles map[string]string `json:"speaker_roles"`

	// AvgConfidence is the arithmetic mean of per-utterance confidences,
	// 0 when there are no utterances.
	AvgConfidence float64 `json:"avg_confidence" db:"avg_confidence"`

	AudioDurationSeconds float64 `json:"audio_duration_seconds" db:"audio_duration_seconds"`
	WordCount            int     `json:"word_count" db:"word_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Utterance is one speaker turn with timing and confidence.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	Confidence float64 `json:"confidence"`
}

// MeanConfidence returns the arithmetic mean of utterance confidences,
// 0 for an empty slice.
func MeanConfidence(utterances []Utterance) float64 {
	if len(utterances) == 0 {
		return 0
	}
	var sum float64
	for _, u := range utterances {
		sum += u.Confidence
	}
	return sum / float64(len(utterances))
}

// CountWords counts whitespace-separated tokens across utterance texts.
func CountWords(utterances []Utterance) int {
	n := 0
	for _, u := range utterances {
		inWord := false
		for _, r := range u.Text {
			if r == ' ' || r == '\t' || r == '\n' {
				inWord = false
				continue
			}
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}
