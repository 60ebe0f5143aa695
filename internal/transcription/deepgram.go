package transcription

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"freightcall-platform/internal/config"
	"freightcall-platform/internal/transcripts"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// DeepgramProvider transcribes prerecorded audio through Deepgram's REST API.
//
// The pre-recorded endpoint is synchronous: one POST with the audio URL,
// response carries the full transcript with diarized utterances. Progress
// callbacks therefore bracket the request rather than stream from the
// provider.
type DeepgramProvider struct {
	client *resty.Client
	model  string
}

func NewDeepgramProvider(cfg config.DeepgramConfig) *DeepgramProvider {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", "Token "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(4 * time.Minute)
	return &DeepgramProvider{client: client, model: cfg.Model}
}

func (p *DeepgramProvider) Name() string { return "deepgram" }

// Deepgram pre-recorded response, reduced to the fields we consume.
// https://developers.deepgram.com/reference/speech-to-text-api/listen

type dgResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []dgWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []dgUtterance `json:"utterances"`
	} `json:"results"`
}

type dgWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Speaker    int     `json:"speaker"`
}

type dgUtterance struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Transcript string  `json:"transcript"`
	Speaker    int     `json:"speaker"`
}

type dgError struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

func (p *DeepgramProvider) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	if req.AudioURL == "" {
		return Result{}, fmt.Errorf("%w: audio url required", ErrProviderFailure)
	}

	progress(req.OnProgress, 5, "Submitting audio for transcription.")

	params := map[string]string{
		"model":        p.model,
		"punctuate":    "true",
		"smart_format": "true",
		"diarize":      "true",
		"utterances":   "true",
	}
	var out dgResponse
	operation := func() error {
		var apiErr dgError
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetBody(map[string]string{"url": req.AudioURL}).
			SetResult(&out).
			SetError(&apiErr).
			Post("/v1/listen")
		if err != nil {
			return err
		}
		if resp.IsError() {
			err := fmt.Errorf("deepgram %d: %s", resp.StatusCode(), apiErr.ErrMsg)
			if resp.StatusCode() >= 500 {
				return err
			}
			// Client errors do not improve with retries.
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	progress(req.OnProgress, 90, "Transcription received, assembling transcript.")

	res := p.toResult(out)
	res = applyTrim(res, req.TrimStartSec, req.TrimEndSec)

	progress(req.OnProgress, 100, "Transcription complete.")
	return res, nil
}

func (p *DeepgramProvider) toResult(out dgResponse) Result {
	res := Result{
		AudioDurationMs: int64(out.Metadata.Duration * 1000),
	}

	if len(out.Results.Channels) > 0 && len(out.Results.Channels[0].Alternatives) > 0 {
		alt := out.Results.Channels[0].Alternatives[0]
		res.Text = alt.Transcript
		for _, w := range alt.Words {
			res.Words = append(res.Words, Word{
				Word:       w.Word,
				StartSec:   w.Start,
				EndSec:     w.End,
				Confidence: w.Confidence,
				Speaker:    strconv.Itoa(w.Speaker),
			})
		}
	}

	for _, u := range out.Results.Utterances {
		res.Utterances = append(res.Utterances, transcripts.Utterance{
			Speaker:    strconv.Itoa(u.Speaker),
			Text:       u.Transcript,
			StartSec:   u.Start,
			EndSec:     u.End,
			Confidence: u.Confidence,
		})
	}
	return res
}

// applyTrim discards utterances and words fully outside the clip window.
// The pre-recorded API has no server-side trim, so the window is applied
// to the returned timeline instead.
func applyTrim(res Result, startSec, endSec *float64) Result {
	if startSec == nil && endSec == nil {
		return res
	}
	inWindow := func(s, e float64) bool {
		if startSec != nil && e < *startSec {
			return false
		}
		if endSec != nil && s > *endSec {
			return false
		}
		return true
	}

	var utterances []transcripts.Utterance
	for _, u := range res.Utterances {
		if inWindow(u.StartSec, u.EndSec) {
			utterances = append(utterances, u)
		}
	}
	res.Utterances = utterances

	var words []Word
	for _, w := range res.Words {
		if inWindow(w.StartSec, w.EndSec) {
			words = append(words, w)
		}
	}
	res.Words = words
	return res
}

func progress(fn ProgressFunc, percent int, message string) {
	if fn != nil {
		fn(percent, message)
	}
}
