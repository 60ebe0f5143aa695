package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"freightcall-platform/internal/config"
)

func deepgramFixture() map[string]any {
	return map[string]any{
		"metadata": map[string]any{"duration": 92.5},
		"results": map[string]any{
			"channels": []any{
				map[string]any{
					"alternatives": []any{
						map[string]any{
							"transcript": "Hi this is Dana with Acme Freight. Hello Dana.",
							"confidence": 0.97,
							"words": []any{
								map[string]any{"word": "Hi", "start": 0.2, "end": 0.4, "confidence": 0.99, "speaker": 0},
								map[string]any{"word": "Hello", "start": 5.1, "end": 5.4, "confidence": 0.95, "speaker": 1},
							},
						},
					},
				},
			},
			"utterances": []any{
				map[string]any{"start": 0.2, "end": 4.8, "confidence": 0.97, "transcript": "Hi this is Dana with Acme Freight.", "speaker": 0},
				map[string]any{"start": 5.1, "end": 6.0, "confidence": 0.95, "transcript": "Hello Dana.", "speaker": 1},
			},
		},
	}
}

func TestDeepgramSubmit(t *testing.T) {
	var gotAuth, gotModel, gotDiarize string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotModel = r.URL.Query().Get("model")
		gotDiarize = r.URL.Query().Get("diarize")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(deepgramFixture())
	}))
	defer srv.Close()

	p := NewDeepgramProvider(config.DeepgramConfig{APIKey: "dg-key", BaseURL: srv.URL, Model: "nova-2"})

	var percents []int
	res, err := p.Submit(context.Background(), SubmitRequest{
		AudioURL: "https://recordings.example.com/call.mp3",
		OnProgress: func(pct int, _ string) {
			percents = append(percents, pct)
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotAuth != "Token dg-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotModel != "nova-2" || gotDiarize != "true" {
		t.Errorf("query model=%q diarize=%q", gotModel, gotDiarize)
	}
	if gotBody["url"] != "https://recordings.example.com/call.mp3" {
		t.Errorf("body url = %q", gotBody["url"])
	}

	if res.AudioDurationMs != 92500 {
		t.Errorf("AudioDurationMs = %d, want 92500", res.AudioDurationMs)
	}
	if len(res.Utterances) != 2 {
		t.Fatalf("utterances = %d, want 2", len(res.Utterances))
	}
	if res.Utterances[0].Speaker != "0" || res.Utterances[1].Speaker != "1" {
		t.Errorf("speakers = %q, %q", res.Utterances[0].Speaker, res.Utterances[1].Speaker)
	}
	if len(res.Words) != 2 {
		t.Errorf("words = %d, want 2", len(res.Words))
	}
	if len(percents) == 0 {
		t.Error("expected progress callbacks")
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards: %v", percents)
		}
	}
}

func TestDeepgramSubmitTrimWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(deepgramFixture())
	}))
	defer srv.Close()

	p := NewDeepgramProvider(config.DeepgramConfig{APIKey: "k", BaseURL: srv.URL, Model: "nova-2"})

	start := 5.0
	res, err := p.Submit(context.Background(), SubmitRequest{
		AudioURL:     "https://recordings.example.com/call.mp3",
		TrimStartSec: &start,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(res.Utterances) != 1 {
		t.Fatalf("utterances = %d, want 1 after trim", len(res.Utterances))
	}
	if res.Utterances[0].Speaker != "1" {
		t.Errorf("kept utterance speaker = %q, want 1", res.Utterances[0].Speaker)
	}
	if len(res.Words) != 1 || res.Words[0].Word != "Hello" {
		t.Errorf("kept words = %+v", res.Words)
	}
}

func TestDeepgramSubmitClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"err_code": "INVALID_URL", "err_msg": "url unreachable"})
	}))
	defer srv.Close()

	p := NewDeepgramProvider(config.DeepgramConfig{APIKey: "k", BaseURL: srv.URL, Model: "nova-2"})

	_, err := p.Submit(context.Background(), SubmitRequest{AudioURL: "https://bad.example.com/x.mp3"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
}

func TestDeepgramSubmitRetriesServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(deepgramFixture())
	}))
	defer srv.Close()

	p := NewDeepgramProvider(config.DeepgramConfig{APIKey: "k", BaseURL: srv.URL, Model: "nova-2"})

	res, err := p.Submit(context.Background(), SubmitRequest{AudioURL: "https://recordings.example.com/call.mp3"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls < 2 {
		t.Errorf("calls = %d, want retry after 502", calls)
	}
	if res.Text == "" {
		t.Error("expected transcript after retry")
	}
}

func TestDeepgramSubmitMissingURL(t *testing.T) {
	p := NewDeepgramProvider(config.DeepgramConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "nova-2"})
	if _, err := p.Submit(context.Background(), SubmitRequest{}); err == nil {
		t.Fatal("expected error for empty audio url")
	}
}
