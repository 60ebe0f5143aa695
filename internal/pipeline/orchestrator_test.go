package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"freightcall-platform/internal/auth"
	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/config"
	"freightcall-platform/internal/events"
	"freightcall-platform/internal/extraction"
	"freightcall-platform/internal/pricing"
	"freightcall-platform/internal/templates"
	"freightcall-platform/internal/transcription"
	"freightcall-platform/internal/transcripts"
	"freightcall-platform/internal/usage"
)

// fakeProvider returns a canned transcription result or error, emitting
// the configured progress callbacks first.
type fakeProvider struct {
	result    transcription.Result
	err       error
	progress  []int
	submitted int
	mu        sync.Mutex
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Submit(ctx context.Context, req transcription.SubmitRequest) (transcription.Result, error) {
	p.mu.Lock()
	p.submitted++
	p.mu.Unlock()
	for _, pct := range p.progress {
		if req.OnProgress != nil {
			req.OnProgress(pct, "transcribing")
		}
	}
	if p.err != nil {
		return transcription.Result{}, p.err
	}
	return p.result, nil
}

type staticSelector struct{ p transcription.Provider }

func (s staticSelector) ForOrg(string) transcription.Provider { return s.p }

// fakeExtractor serves canned core and template results.
type fakeExtractor struct {
	core        extraction.CoreExtraction
	coreErr     error
	fields      []extraction.TemplateFieldResult
	fieldsErr   error
	coreCalls   int
	fieldsCalls int
}

func (e *fakeExtractor) ModelTag() string { return "openai:test-model" }

func (e *fakeExtractor) Extract(ctx context.Context, req extraction.CoreRequest) (extraction.CoreExtraction, error) {
	e.coreCalls++
	if e.coreErr != nil {
		return extraction.CoreExtraction{}, e.coreErr
	}
	return e.core, nil
}

func (e *fakeExtractor) ExtractFields(ctx context.Context, req extraction.TemplateRequest) ([]extraction.TemplateFieldResult, error) {
	e.fieldsCalls++
	if e.fieldsErr != nil {
		return nil, e.fieldsErr
	}
	if e.fields != nil {
		return e.fields, nil
	}
	out := make([]extraction.TemplateFieldResult, 0, len(req.FieldDefs))
	for _, d := range req.FieldDefs {
		out = append(out, extraction.TemplateFieldResult{FieldName: d.Name, Value: "v"})
	}
	return out, nil
}

type capturedNotice struct {
	mu      sync.Mutex
	notices []CompletionNotice
}

func (c *capturedNotice) CallProcessed(_ context.Context, n CompletionNotice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

type fixture struct {
	orch        *Orchestrator
	callStore   *calls.MemoryStore
	transcripts *transcripts.MemoryStore
	templates   *templates.MemoryStore
	members     *auth.MemoryMembershipStore
	eventsRepo  *events.MemoryRepo
	usageRepo   *usage.MemoryRepo
	provider    *fakeProvider
	extractor   *fakeExtractor
	notifier    *capturedNotice
}

func standardResult() transcription.Result {
	return transcription.Result{
		Text: "Hi this is Dana with Acme Freight. Hello Dana.",
		Utterances: []transcripts.Utterance{
			{Speaker: "0", Text: "Hi this is Dana with Acme Freight.", StartSec: 0.2, EndSec: 4.8, Confidence: 0.9},
			{Speaker: "1", Text: "Hello Dana.", StartSec: 5.1, EndSec: 6.0, Confidence: 0.7},
			{Speaker: "0", Text: "Great to connect.", StartSec: 6.2, EndSec: 7.0, Confidence: 1.0},
		},
		AudioDurationMs: 92_500,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		callStore:   calls.NewMemoryStore(),
		transcripts: transcripts.NewMemoryStore(),
		templates:   templates.NewMemoryStore(),
		members:     auth.NewMemoryMembershipStore(),
		eventsRepo:  events.NewMemoryRepo(),
		usageRepo:   usage.NewMemoryRepo(),
		provider: &fakeProvider{
			result:   standardResult(),
			progress: []int{10, 60, 100},
		},
		extractor: &fakeExtractor{core: extraction.CoreExtraction{
			Summary:            "Reefer lane intro.",
			CallOutcome:        "follow_up_scheduled",
			QualificationScore: 72,
			Sentiment:          "positive",
			Raw:                extraction.RawExtraction{CustomerCompany: "Acme Foods"},
		}},
		notifier: &capturedNotice{},
	}

	pricingSvc := pricing.NewService(&pricing.MemoryRepo{}, config.UsageConfig{RatePerMinuteMinor: 2, Currency: "USD"})
	usageSvc := usage.NewService(f.usageRepo, pricingSvc)

	f.orch = NewOrchestrator(Deps{
		CallStore:       f.callStore,
		TranscriptStore: f.transcripts,
		Providers:       staticSelector{f.provider},
		Extractor:       f.extractor,
		Templates:       templates.NewAuthorizer(f.templates, f.members),
		Events:          events.NewService(f.eventsRepo),
		Usage:           usageSvc,
		Notifier:        f.notifier,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		RunTimeout:      time.Minute,
	})
	return f
}

func (f *fixture) createCall(t *testing.T, c calls.Call) calls.Call {
	t.Helper()
	if c.OrgID == "" {
		c.OrgID = "org-1"
	}
	if c.UserID == "" {
		c.UserID = "u-1"
	}
	if c.AudioURL == "" {
		c.AudioURL = "https://recordings.example.com/call.mp3"
	}
	created, err := f.callStore.Create(context.Background(), c)
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	return created
}

func (f *fixture) run(t *testing.T, c calls.Call) calls.Call {
	t.Helper()
	ctx := context.Background()
	claimed, err := f.orch.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := f.orch.Process(ctx, c.OrgID, c.ID, claimed.RunAttempt); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, err := f.callStore.Get(ctx, c.OrgID, claimed.ID)
	if err != nil {
		t.Fatalf("reload call: %v", err)
	}
	return got
}

func TestProcessHappyPathNoTemplate(t *testing.T) {
	f := newFixture(t)
	c := f.createCall(t, calls.Call{})

	got := f.run(t, c)

	if got.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q, error = %q", got.Status, got.ErrorMessage)
	}
	if got.ProcessingProgress != 100 {
		t.Errorf("progress = %d", got.ProcessingProgress)
	}
	if got.DurationSeconds != 93 {
		t.Errorf("duration = %d, want 93", got.DurationSeconds)
	}
	if got.Sentiment != "positive" || got.CustomerCompany != "Acme Foods" {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.ProcessedAt == nil {
		t.Error("processed_at not set")
	}

	fields, _ := f.callStore.ListFields(context.Background(), c.ID)
	if len(fields) != 20 {
		t.Fatalf("fields = %d, want exactly the core set", len(fields))
	}
	byName := map[string]calls.ExtractedField{}
	for _, fd := range fields {
		byName[fd.FieldName] = fd
		if fd.Source != "openai:test-model" {
			t.Errorf("%s: source = %q", fd.FieldName, fd.Source)
		}
	}
	if byName["qualificationScore"].FieldValue != "72" {
		t.Errorf("qualificationScore = %q", byName["qualificationScore"].FieldValue)
	}
	if byName["callOutcome"].FieldValue != `"follow_up_scheduled"` {
		t.Errorf("callOutcome = %q", byName["callOutcome"].FieldValue)
	}

	tr, err := f.transcripts.GetByCall(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if tr.SpeakerRoles["0"] != "sales_rep" || tr.SpeakerRoles["1"] != "customer" {
		t.Errorf("roles = %v", tr.SpeakerRoles)
	}
	if diff := tr.AvgConfidence - 0.8667; diff > 0.0001 || diff < -0.0001 {
		t.Errorf("avg confidence = %v", tr.AvgConfidence)
	}

	if len(f.notifier.notices) != 1 || f.notifier.notices[0].CompanyName != "Acme Foods" {
		t.Errorf("notices = %+v", f.notifier.notices)
	}

	recs, _ := f.usageRepo.ListByOrg(context.Background(), "org-1", time.Time{}, time.Time{})
	if len(recs) != 1 {
		t.Fatalf("usage records = %d", len(recs))
	}
	if recs[0].Minutes != 2 || recs[0].CostMinor != 4 {
		t.Errorf("usage = %+v", recs[0])
	}
}

func TestTriggerRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orch.Trigger(ctx, "org-1", "missing"); !errors.Is(err, calls.ErrNotFound) {
		t.Errorf("missing call: %v", err)
	}

	noAudio, _ := f.callStore.Create(ctx, calls.Call{OrgID: "org-1", UserID: "u-1"})
	if _, err := f.orch.Trigger(ctx, "org-1", noAudio.ID); !errors.Is(err, ErrMissingAudio) {
		t.Errorf("missing audio: %v", err)
	}
	if got, _ := f.callStore.Get(ctx, "org-1", noAudio.ID); got.Status != calls.CallStatusFailed {
		t.Errorf("missing audio status = %q, want failed", got.Status)
	}

	c := f.createCall(t, calls.Call{})
	if _, err := f.orch.Trigger(ctx, c.OrgID, c.ID); err != nil {
		t.Fatalf("first trigger: %v", err)
	}
	if _, err := f.orch.Trigger(ctx, c.OrgID, c.ID); !errors.Is(err, calls.ErrRunInFlight) {
		t.Errorf("concurrent trigger: %v", err)
	}

	// Foreign org cannot see the call at all.
	if _, err := f.orch.Trigger(ctx, "org-2", c.ID); !errors.Is(err, calls.ErrNotFound) {
		t.Errorf("foreign org: %v", err)
	}
}

func TestProcessTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = transcription.ErrProviderFailure
	c := f.createCall(t, calls.Call{})

	ctx := context.Background()
	claimed, err := f.orch.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := f.orch.Process(ctx, c.OrgID, c.ID, claimed.RunAttempt); err == nil {
		t.Fatal("expected failure")
	}

	got, _ := f.callStore.Get(ctx, c.OrgID, c.ID)
	if got.Status != calls.CallStatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("error message empty")
	}
	if _, err := f.transcripts.GetByCall(ctx, c.ID); !errors.Is(err, transcripts.ErrNotFound) {
		t.Errorf("expected no transcript, got %v", err)
	}
	if recs, _ := f.usageRepo.ListByOrg(ctx, "org-1", time.Time{}, time.Time{}); len(recs) != 0 {
		t.Errorf("failed run must not bill: %d records", len(recs))
	}

	// failed is re-triggerable; the retry succeeds.
	f.provider.err = nil
	got = f.run(t, c)
	if got.Status != calls.CallStatusCompleted {
		t.Fatalf("retry status = %q", got.Status)
	}
	if got.RunAttempt != 2 {
		t.Errorf("run attempt = %d", got.RunAttempt)
	}
}

func TestProcessExtractionFailureKeepsTranscript(t *testing.T) {
	f := newFixture(t)
	f.extractor.coreErr = extraction.ErrExtractionFailure
	c := f.createCall(t, calls.Call{})

	ctx := context.Background()
	claimed, err := f.orch.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := f.orch.Process(ctx, c.OrgID, c.ID, claimed.RunAttempt); err == nil {
		t.Fatal("expected failure")
	}

	got, _ := f.callStore.Get(ctx, c.OrgID, c.ID)
	if got.Status != calls.CallStatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	// Partial progress stays as evidence.
	if _, err := f.transcripts.GetByCall(ctx, c.ID); err != nil {
		t.Errorf("transcript should survive extraction failure: %v", err)
	}
}

func TestProcessAuthorizedTemplate(t *testing.T) {
	f := newFixture(t)
	seedTpl := templates.Template{ID: "tpl-1", UserID: "u-1", Name: "Lane intake"}
	_, _ = f.templates.Create(context.Background(), seedTpl, []templates.TemplateField{
		{ID: "tf-1", TemplateID: "tpl-1", Name: "equipmentType", FieldType: "select", Position: 1},
		{ID: "tf-2", TemplateID: "tpl-1", Name: "laneNotes", FieldType: "text", Position: 2},
	})
	c := f.createCall(t, calls.Call{TemplateID: "tpl-1"})

	got := f.run(t, c)
	if got.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q, error = %q", got.Status, got.ErrorMessage)
	}

	fields, _ := f.callStore.ListFields(context.Background(), c.ID)
	if len(fields) != 22 {
		t.Fatalf("fields = %d, want core + 2 template rows", len(fields))
	}
	var tplRows int
	for _, fd := range fields {
		if fd.Source == calls.SourceTemplate {
			tplRows++
			if fd.ConfidenceScore != extraction.TemplateDefaultConfidence {
				t.Errorf("%s: confidence = %v", fd.FieldName, fd.ConfidenceScore)
			}
		}
	}
	if tplRows != 2 {
		t.Errorf("template rows = %d", tplRows)
	}
}

func TestProcessUnauthorizedTemplateDegradesToCore(t *testing.T) {
	f := newFixture(t)
	seedTpl := templates.Template{ID: "tpl-1", OrgID: "org-other", UserID: "someone-else"}
	_, _ = f.templates.Create(context.Background(), seedTpl, []templates.TemplateField{
		{ID: "tf-1", TemplateID: "tpl-1", Name: "x", FieldType: "text", Position: 1},
	})
	c := f.createCall(t, calls.Call{TemplateID: "tpl-1"})

	got := f.run(t, c)
	if got.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q", got.Status)
	}

	fields, _ := f.callStore.ListFields(context.Background(), c.ID)
	if len(fields) != 20 {
		t.Fatalf("fields = %d, want core-only", len(fields))
	}
	if f.extractor.fieldsCalls != 0 {
		t.Error("template extractor must not run for unauthorized template")
	}

	var skipped bool
	for _, e := range f.eventsRepo.ByCall(c.ID) {
		if e.Type == events.EventTypeTemplateSkipped {
			skipped = true
			break
		}
	}
	if !skipped {
		t.Error("expected template_skipped event")
	}
}

func TestProcessTemplateExtractionFailureNonFatal(t *testing.T) {
	f := newFixture(t)
	f.extractor.fieldsErr = extraction.ErrExtractionFailure
	seedTpl := templates.Template{ID: "tpl-1", UserID: "u-1"}
	_, _ = f.templates.Create(context.Background(), seedTpl, []templates.TemplateField{
		{ID: "tf-1", TemplateID: "tpl-1", Name: "x", FieldType: "text", Position: 1},
	})
	c := f.createCall(t, calls.Call{TemplateID: "tpl-1"})

	got := f.run(t, c)
	if got.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q, template failure must be non-fatal", got.Status)
	}
	fields, _ := f.callStore.ListFields(context.Background(), c.ID)
	if len(fields) != 20 {
		t.Fatalf("fields = %d, want core-only", len(fields))
	}
}

func TestProcessReRunReplacesFields(t *testing.T) {
	f := newFixture(t)
	c := f.createCall(t, calls.Call{})

	first := f.run(t, c)
	if first.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q", first.Status)
	}

	second := f.run(t, c)
	if second.RunAttempt != 2 {
		t.Fatalf("run attempt = %d", second.RunAttempt)
	}

	fields, _ := f.callStore.ListFields(context.Background(), c.ID)
	if len(fields) != 20 {
		t.Fatalf("fields = %d after re-run, want no duplicates", len(fields))
	}
	seen := map[string]bool{}
	for _, fd := range fields {
		if seen[fd.FieldName] {
			t.Errorf("duplicate field %q", fd.FieldName)
		}
		seen[fd.FieldName] = true
	}

	// Each attempt bills once.
	recs, _ := f.usageRepo.ListByOrg(context.Background(), "org-1", time.Time{}, time.Time{})
	if len(recs) != 2 {
		t.Fatalf("usage records = %d", len(recs))
	}
}

func TestProcessProgressMonotonicTo100(t *testing.T) {
	f := newFixture(t)
	// Provider reports out of order; the store guard must keep progress
	// non-decreasing.
	f.provider.progress = []int{40, 20, 100}
	c := f.createCall(t, calls.Call{})

	got := f.run(t, c)
	if got.ProcessingProgress != 100 {
		t.Fatalf("final progress = %d", got.ProcessingProgress)
	}
}

func TestProcessTimeout(t *testing.T) {
	f := newFixture(t)
	f.orch.runTimeout = 10 * time.Millisecond

	slow := &slowProvider{delay: 200 * time.Millisecond}
	f.orch.providers = staticSelector{slow}
	c := f.createCall(t, calls.Call{})

	ctx := context.Background()
	claimed, err := f.orch.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if err := f.orch.Process(ctx, c.OrgID, c.ID, claimed.RunAttempt); err == nil {
		t.Fatal("expected timeout failure")
	}

	got, _ := f.callStore.Get(ctx, c.OrgID, c.ID)
	if got.Status != calls.CallStatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("timeout must leave an error message")
	}
}

type slowProvider struct{ delay time.Duration }

func (p *slowProvider) Name() string { return "slow" }

func (p *slowProvider) Submit(ctx context.Context, req transcription.SubmitRequest) (transcription.Result, error) {
	select {
	case <-time.After(p.delay):
		return transcription.Result{}, nil
	case <-ctx.Done():
		return transcription.Result{}, ctx.Err()
	}
}

func TestProcessDropsSupersededAttempt(t *testing.T) {
	f := newFixture(t)
	c := f.createCall(t, calls.Call{})
	ctx := context.Background()

	stale, err := f.orch.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	// The first run is swept stale and the call re-triggered before the
	// first worker gets to its job.
	if err := f.callStore.MarkFailed(ctx, c.ID, stale.RunAttempt, "processing abandoned"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	current, err := f.orch.Trigger(ctx, c.OrgID, c.ID)
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}

	if err := f.orch.Process(ctx, c.OrgID, c.ID, stale.RunAttempt); err != nil {
		t.Fatalf("stale Process: %v", err)
	}
	if f.provider.submitted != 0 {
		t.Errorf("stale job must not reach the provider, submitted = %d", f.provider.submitted)
	}
	got, _ := f.callStore.Get(ctx, c.OrgID, c.ID)
	if got.Status != calls.CallStatusProcessing || got.RunAttempt != current.RunAttempt {
		t.Fatalf("stale job touched the call: status %q attempt %d", got.Status, got.RunAttempt)
	}

	// The current attempt still runs to completion.
	if err := f.orch.Process(ctx, c.OrgID, c.ID, current.RunAttempt); err != nil {
		t.Fatalf("current Process: %v", err)
	}
	got, _ = f.callStore.Get(ctx, c.OrgID, c.ID)
	if got.Status != calls.CallStatusCompleted || f.provider.submitted != 1 {
		t.Fatalf("current run: status %q submitted %d", got.Status, f.provider.submitted)
	}
}
