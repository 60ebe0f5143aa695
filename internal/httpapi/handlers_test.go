package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"freightcall-platform/internal/auth"
	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/jobs"
	"freightcall-platform/internal/pipeline"
	"freightcall-platform/internal/reporting"
	"freightcall-platform/internal/transcripts"

	"github.com/gin-gonic/gin"
)

type fakeTrigger struct {
	store *calls.MemoryStore
	err   error
}

func (f fakeTrigger) Trigger(ctx context.Context, orgID, callID string) (calls.Call, error) {
	if f.err != nil {
		return calls.Call{}, f.err
	}
	c, err := f.store.Get(ctx, orgID, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if c.AudioURL == "" {
		return calls.Call{}, pipeline.ErrMissingAudio
	}
	return f.store.BeginRun(ctx, callID)
}

type fakeSubmitter struct {
	submitted []string
	err       error
}

func (f *fakeSubmitter) Submit(ctx context.Context, orgID, callID string, runAttempt int) (jobs.Job, error) {
	if f.err != nil {
		return jobs.Job{}, f.err
	}
	f.submitted = append(f.submitted, fmt.Sprintf("%s@%d", callID, runAttempt))
	return jobs.Job{ID: "j1", OrgID: orgID}, nil
}

type testEnv struct {
	router      *gin.Engine
	callStore   *calls.MemoryStore
	transcripts *transcripts.MemoryStore
	submitter   *fakeSubmitter
	reportRepo  *reporting.MemoryRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		callStore:   calls.NewMemoryStore(),
		transcripts: transcripts.NewMemoryStore(),
		submitter:   &fakeSubmitter{},
		reportRepo:  reporting.NewMemoryRepo(),
	}

	h := Handlers{
		Calls:       env.callStore,
		Transcripts: env.transcripts,
		Trigger:     fakeTrigger{store: env.callStore},
		Submitter:   env.submitter,
		Reporting:   reporting.NewService(env.reportRepo),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	r := gin.New()
	identity := func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u-1", "org-1", "broker"))
		c.Next()
	}
	v1 := r.Group("/v1", identity)
	v1.POST("/calls/:call_id/process", h.TriggerProcessing)
	v1.GET("/calls/:call_id/status", h.GetCallStatus)
	v1.GET("/calls/:call_id", h.GetCall)
	v1.GET("/reports/processing", h.ProcessingReport)
	v1.GET("/reports/spend", h.SpendReport)

	env.router = r
	return env
}

func (env *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) seedCall(t *testing.T, c calls.Call) calls.Call {
	t.Helper()
	if c.OrgID == "" {
		c.OrgID = "org-1"
	}
	if c.UserID == "" {
		c.UserID = "u-1"
	}
	created, err := env.callStore.Create(context.Background(), c)
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return created
}

func TestTriggerProcessingAccepted(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCall(t, calls.Call{AudioURL: "https://x/a.mp3"})

	w := env.do(t, http.MethodPost, "/v1/calls/"+c.ID+"/process")
	if w.Code != http.StatusAccepted {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		CallID     string `json:"call_id"`
		RunAttempt int    `json:"run_attempt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CallID != c.ID || resp.RunAttempt != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if len(env.submitter.submitted) != 1 || env.submitter.submitted[0] != c.ID+"@1" {
		t.Errorf("submitted = %v", env.submitter.submitted)
	}
}

func TestTriggerProcessingStatusMapping(t *testing.T) {
	env := newTestEnv(t)

	// Unknown call.
	if w := env.do(t, http.MethodPost, "/v1/calls/nope/process"); w.Code != http.StatusNotFound {
		t.Errorf("unknown call: %d", w.Code)
	}

	// Missing audio.
	noAudio := env.seedCall(t, calls.Call{})
	if w := env.do(t, http.MethodPost, "/v1/calls/"+noAudio.ID+"/process"); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing audio: %d", w.Code)
	}

	// Run already in flight.
	busy := env.seedCall(t, calls.Call{AudioURL: "https://x/a.mp3"})
	if w := env.do(t, http.MethodPost, "/v1/calls/"+busy.ID+"/process"); w.Code != http.StatusAccepted {
		t.Fatalf("first trigger: %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/v1/calls/"+busy.ID+"/process"); w.Code != http.StatusConflict {
		t.Errorf("second trigger: %d", w.Code)
	}

	// Foreign org call is invisible.
	foreign := env.seedCall(t, calls.Call{OrgID: "org-2", AudioURL: "https://x/a.mp3"})
	if w := env.do(t, http.MethodPost, "/v1/calls/"+foreign.ID+"/process"); w.Code != http.StatusNotFound {
		t.Errorf("foreign org: %d", w.Code)
	}
}

func TestGetCallStatus(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCall(t, calls.Call{AudioURL: "https://x/a.mp3"})

	run, _ := env.callStore.BeginRun(context.Background(), c.ID)
	_ = env.callStore.UpdateProgress(context.Background(), c.ID, run.RunAttempt, calls.CallStatusTranscribing, 30, "Transcribing audio.")

	w := env.do(t, http.MethodGet, "/v1/calls/"+c.ID+"/status")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}

	var resp struct {
		Status   string `json:"status"`
		Progress int    `json:"processing_progress"`
		Message  string `json:"processing_message"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "transcribing" || resp.Progress != 30 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Error != "" {
		t.Errorf("unexpected error field: %q", resp.Error)
	}

	// Failed runs expose the error so the UI can offer a retry.
	_ = env.callStore.MarkFailed(context.Background(), c.ID, run.RunAttempt, "transcription: provider failure")
	w = env.do(t, http.MethodGet, "/v1/calls/"+c.ID+"/status")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "failed" || resp.Error == "" {
		t.Errorf("failed resp = %+v", resp)
	}
}

func TestGetCallWithTranscriptAndFields(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCall(t, calls.Call{AudioURL: "https://x/a.mp3"})

	_ = env.callStore.ReplaceFields(context.Background(), c.ID, []calls.ExtractedField{
		{FieldName: "summary", FieldValue: `"short"`, FieldType: calls.FieldTypeText, ConfidenceScore: 0.9, Source: "openai:test"},
	})
	_, _ = env.transcripts.Replace(context.Background(), transcripts.Transcript{
		CallID:   c.ID,
		FullText: "Hello.",
		SpeakerRoles: map[string]string{
			"0": "sales_rep",
		},
		AvgConfidence: 0.95,
		WordCount:     1,
	})

	w := env.do(t, http.MethodGet, "/v1/calls/"+c.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}

	var resp struct {
		Call            calls.Call             `json:"call"`
		ExtractedFields []calls.ExtractedField `json:"extracted_fields"`
		Transcript      map[string]any         `json:"transcript"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Call.ID != c.ID {
		t.Errorf("call id = %q", resp.Call.ID)
	}
	if len(resp.ExtractedFields) != 1 || resp.ExtractedFields[0].FieldName != "summary" {
		t.Errorf("fields = %+v", resp.ExtractedFields)
	}
	if resp.Transcript == nil {
		t.Error("transcript missing")
	}

	// A call without a transcript still renders.
	bare := env.seedCall(t, calls.Call{AudioURL: "https://x/b.mp3"})
	if w := env.do(t, http.MethodGet, "/v1/calls/"+bare.ID); w.Code != http.StatusOK {
		t.Errorf("bare call: %d", w.Code)
	}
}

func TestProcessingReportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.reportRepo.Calls = []calls.Call{
		{ID: "c1", OrgID: "org-1", Status: calls.CallStatusCompleted, RunAttempt: 1, DurationSeconds: 60},
	}

	w := env.do(t, http.MethodGet, "/v1/reports/processing")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, body = %s", w.Code, w.Body.String())
	}

	var resp reporting.ProcessingSummary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCalls != 1 || resp.CompletedCalls != 1 {
		t.Errorf("resp = %+v", resp)
	}

	if w := env.do(t, http.MethodGet, "/v1/reports/processing?from=bogus"); w.Code != http.StatusBadRequest {
		t.Errorf("bad from: %d", w.Code)
	}
}
