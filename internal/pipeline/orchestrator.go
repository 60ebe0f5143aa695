package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/events"
	"freightcall-platform/internal/extraction"
	"freightcall-platform/internal/templates"
	"freightcall-platform/internal/transcription"
	"freightcall-platform/internal/transcripts"
	"freightcall-platform/internal/usage"
)

// ProviderSelector resolves the transcription provider for an org.
type ProviderSelector interface {
	ForOrg(orgID string) transcription.Provider
}

// TemplateResolver loads and authorizes the template attached to a call.
type TemplateResolver interface {
	Resolve(ctx context.Context, userID, templateID string) (templates.Template, []templates.TemplateField, error)
}

// UsageRecorder meters a completed run.
type UsageRecorder interface {
	RecordRun(ctx context.Context, req usage.RecordRunRequest) (usage.Record, bool, error)
}

// Orchestrator owns the call state machine for the duration of a run. It is
// the single writer of the call record between trigger and terminal state.
type Orchestrator struct {
	callStore       calls.Store
	transcriptStore transcripts.Store
	providers       ProviderSelector
	extractor       extraction.Extractor
	templates       TemplateResolver
	events          *events.Service
	usage           UsageRecorder
	notifier        Notifier
	cache           ProgressCache
	logger          *slog.Logger

	runTimeout time.Duration
	clock      func() time.Time
}

type Deps struct {
	CallStore       calls.Store
	TranscriptStore transcripts.Store
	Providers       ProviderSelector
	Extractor       extraction.Extractor
	Templates       TemplateResolver
	Events          *events.Service
	Usage           UsageRecorder
	Notifier        Notifier
	Cache           ProgressCache // optional
	Logger          *slog.Logger
	RunTimeout      time.Duration
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.RunTimeout <= 0 {
		d.RunTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		callStore:       d.CallStore,
		transcriptStore: d.TranscriptStore,
		providers:       d.Providers,
		extractor:       d.Extractor,
		templates:       d.Templates,
		events:          d.Events,
		usage:           d.Usage,
		notifier:        d.Notifier,
		cache:           d.Cache,
		logger:          d.Logger,
		runTimeout:      d.RunTimeout,
		clock:           time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (o *Orchestrator) SetClock(clock func() time.Time) { o.clock = clock }

// Trigger validates the call and claims a new run attempt. Returns the call
// with the bumped attempt; the actual run happens in Process, usually on a
// job worker.
//
// Errors: calls.ErrNotFound, ErrMissingAudio, calls.ErrRunInFlight.
func (o *Orchestrator) Trigger(ctx context.Context, orgID, callID string) (calls.Call, error) {
	c, err := o.callStore.Get(ctx, orgID, callID)
	if err != nil {
		return calls.Call{}, err
	}
	if c.AudioURL == "" {
		// Mark failed so the UI surfaces the problem; failed stays re-triggerable.
		if err := o.callStore.MarkFailed(ctx, c.ID, c.RunAttempt, "call has no audio url"); err != nil {
			o.logger.WarnContext(ctx, "mark failed on missing audio", "call_id", c.ID, "error", err)
		}
		return calls.Call{}, ErrMissingAudio
	}
	return o.callStore.BeginRun(ctx, c.ID)
}

// Process executes one full pipeline run for a call previously claimed by
// Trigger. runAttempt is the attempt claimed at trigger time; a job whose
// attempt was superseded (swept stale, then re-triggered) is dropped so two
// workers never write the same call. Fatal stage errors mark the call
// failed and are returned; the call keeps any transcript and fields
// persisted before the failure.
func (o *Orchestrator) Process(ctx context.Context, orgID, callID string, runAttempt int) error {
	c, err := o.callStore.Get(ctx, orgID, callID)
	if err != nil {
		return err
	}
	if c.RunAttempt != runAttempt || c.Status != calls.CallStatusProcessing {
		o.logger.InfoContext(ctx, "stale processing job dropped",
			"call_id", c.ID,
			"claimed_attempt", runAttempt,
			"current_attempt", c.RunAttempt,
			"status", c.Status,
		)
		return nil
	}
	attempt := runAttempt

	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	log := o.logger.With("call_id", c.ID, "org_id", c.OrgID, "run_attempt", attempt)

	o.progress(ctx, c.ID, attempt, calls.CallStatusProcessing, 0, "Preparing audio file for transcription.")
	o.event(ctx, log, o.events.StageStarted(ctx, c.OrgID, c.ID, attempt, StageTranscription))

	result, err := o.transcribe(ctx, c, attempt)
	if err != nil {
		return o.fail(ctx, log, c, attempt, StageTranscription, err)
	}
	o.event(ctx, log, o.events.StageCompleted(ctx, c.OrgID, c.ID, attempt, StageTranscription))

	transcript, err := o.persistTranscript(ctx, c, result)
	if err != nil {
		return o.fail(ctx, log, c, attempt, StageTranscription, err)
	}

	o.progress(ctx, c.ID, attempt, calls.CallStatusExtracting, 50, "Analyzing transcript and extracting CRM data.")
	o.event(ctx, log, o.events.StageStarted(ctx, c.OrgID, c.ID, attempt, StageExtraction))

	core, err := o.extractor.Extract(ctx, extraction.CoreRequest{
		TranscriptText: transcript.FullText,
		Utterances:     transcript.Utterances,
		RoleMap:        transcript.SpeakerRoles,
	})
	if err != nil {
		return o.fail(ctx, log, c, attempt, StageExtraction, err)
	}

	o.progress(ctx, c.ID, attempt, calls.CallStatusExtracting, 75, "Saving extracted data.")

	coreFields := extraction.CoreFields(c.ID, o.extractor.ModelTag(), core, o.clock().UTC())
	if err := o.callStore.ReplaceFields(ctx, c.ID, coreFields); err != nil {
		return o.fail(ctx, log, c, attempt, StageExtraction, err)
	}
	o.event(ctx, log, o.events.StageCompleted(ctx, c.OrgID, c.ID, attempt, StageExtraction))

	o.runTemplatePass(ctx, log, c, attempt, transcript)

	o.progress(ctx, c.ID, attempt, calls.CallStatusExtracting, 95, "Finalizing call record.")

	durationSec := int((result.AudioDurationMs + 500) / 1000)
	processedAt := o.clock().UTC()
	if err := o.callStore.Finalize(ctx, c.ID, attempt, durationSec, core.Sentiment, core.Raw.CustomerCompany, processedAt); err != nil {
		return o.fail(ctx, log, c, attempt, StageFinalize, err)
	}
	o.cacheProgress(ctx, log, c.ID, ProgressSnapshot{
		Status: calls.CallStatusCompleted, Progress: 100, Message: "Processing complete.",
	})
	o.event(ctx, log, o.events.RunCompleted(ctx, c.OrgID, c.ID, attempt))

	o.recordUsage(ctx, log, c, attempt, result.AudioDurationMs)
	o.notify(ctx, c, attempt, core, durationSec)

	log.InfoContext(ctx, "pipeline run completed", "duration_seconds", durationSec)
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, c calls.Call, attempt int) (transcription.Result, error) {
	provider := o.providers.ForOrg(c.OrgID)
	return provider.Submit(ctx, transcription.SubmitRequest{
		AudioURL:     c.AudioURL,
		TrimStartSec: c.TrimStartSec,
		TrimEndSec:   c.TrimEndSec,
		OnProgress: func(percent int, message string) {
			if percent < 0 {
				percent = 0
			}
			if percent > 100 {
				percent = 100
			}
			// Transcription owns the 0-50 band of overall progress.
			o.progress(ctx, c.ID, attempt, calls.CallStatusTranscribing, percent/2, message)
		},
	})
}

func (o *Orchestrator) persistTranscript(ctx context.Context, c calls.Call, result transcription.Result) (transcripts.Transcript, error) {
	t := transcripts.Transcript{
		CallID:               c.ID,
		FullText:             result.Text,
		Utterances:           result.Utterances,
		SpeakerRoles:         transcripts.MapSpeakerRoles(result.Utterances),
		AvgConfidence:        transcripts.MeanConfidence(result.Utterances),
		AudioDurationSeconds: float64(result.AudioDurationMs) / 1000,
		WordCount:            transcripts.CountWords(result.Utterances),
	}
	saved, err := o.transcriptStore.Replace(ctx, t)
	if err != nil {
		return transcripts.Transcript{}, fmt.Errorf("persist transcript: %w", err)
	}
	return saved, nil
}

// runTemplatePass runs the conditional second extraction. Every exit short
// of success degrades to core-only without failing the run.
func (o *Orchestrator) runTemplatePass(ctx context.Context, log *slog.Logger, c calls.Call, attempt int, transcript transcripts.Transcript) {
	if c.TemplateID == "" {
		return
	}

	tpl, fieldDefs, err := o.templates.Resolve(ctx, c.UserID, c.TemplateID)
	if err != nil {
		reason := templateSkipReason(err)
		log.WarnContext(ctx, "template pass skipped", "template_id", c.TemplateID, "reason", reason)
		o.event(ctx, log, o.events.TemplateSkipped(ctx, c.OrgID, c.ID, attempt, reason))
		return
	}

	o.event(ctx, log, o.events.StageStarted(ctx, c.OrgID, c.ID, attempt, StageTemplateExtraction))

	defs := make([]extraction.FieldDef, 0, len(fieldDefs))
	for _, f := range fieldDefs {
		defs = append(defs, extraction.FieldDef{ID: f.ID, Name: f.Name, Type: f.FieldType})
	}

	results, err := o.extractor.ExtractFields(ctx, extraction.TemplateRequest{
		TranscriptText: transcript.FullText,
		Utterances:     transcript.Utterances,
		RoleMap:        transcript.SpeakerRoles,
		FieldDefs:      defs,
	})
	if err != nil {
		// Core fields are saved; a template failure leaves them standing.
		log.WarnContext(ctx, "template extraction failed", "template_id", tpl.ID, "error", err)
		o.event(ctx, log, o.events.TemplateSkipped(ctx, c.OrgID, c.ID, attempt, "template extraction failed: "+err.Error()))
		return
	}

	rows := extraction.TemplateFields(c.ID, defs, results, o.clock().UTC())
	if err := o.callStore.AppendFields(ctx, c.ID, rows); err != nil {
		log.WarnContext(ctx, "template fields not persisted", "template_id", tpl.ID, "error", err)
		o.event(ctx, log, o.events.TemplateSkipped(ctx, c.OrgID, c.ID, attempt, "template fields not persisted: "+err.Error()))
		return
	}

	o.progress(ctx, c.ID, attempt, calls.CallStatusExtracting, 85, "Extracting template fields.")
	o.event(ctx, log, o.events.StageCompleted(ctx, c.OrgID, c.ID, attempt, StageTemplateExtraction))
}

func templateSkipReason(err error) string {
	switch {
	case errors.Is(err, templates.ErrNotFound):
		return "template not found"
	case errors.Is(err, templates.ErrUnauthorized):
		return "user not authorized for template"
	case errors.Is(err, templates.ErrEmpty):
		return "template has no fields"
	default:
		return "template resolution failed: " + err.Error()
	}
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, c calls.Call, attempt int, stage string, err error) error {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("%s stage timed out after %s", stage, o.runTimeout)
	}

	// The run context may already be dead; use a fresh one for the writes.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if markErr := o.callStore.MarkFailed(writeCtx, c.ID, attempt, msg); markErr != nil {
		log.ErrorContext(writeCtx, "failed to mark call failed", "error", markErr)
	}
	o.cacheProgress(writeCtx, log, c.ID, ProgressSnapshot{
		Status: calls.CallStatusFailed, Progress: c.ProcessingProgress, ErrorMessage: msg,
	})
	o.event(writeCtx, log, o.events.RunFailed(writeCtx, c.OrgID, c.ID, attempt, stage, msg))

	log.ErrorContext(writeCtx, "pipeline run failed", "stage", stage, "error", err)
	return fmt.Errorf("%s: %w", stage, err)
}

func (o *Orchestrator) progress(ctx context.Context, callID string, attempt int, status calls.CallStatus, percent int, message string) {
	if err := o.callStore.UpdateProgress(ctx, callID, attempt, status, percent, message); err != nil {
		o.logger.WarnContext(ctx, "progress write failed", "call_id", callID, "error", err)
		return
	}
	o.cacheProgress(ctx, o.logger, callID, ProgressSnapshot{Status: status, Progress: percent, Message: message})
}

func (o *Orchestrator) cacheProgress(ctx context.Context, log *slog.Logger, callID string, snap ProgressSnapshot) {
	if o.cache == nil {
		return
	}
	if err := o.cache.SetProgress(ctx, callID, snap); err != nil {
		log.WarnContext(ctx, "progress cache write failed", "call_id", callID, "error", err)
	}
}

func (o *Orchestrator) event(ctx context.Context, log *slog.Logger, err error) {
	if err != nil {
		log.WarnContext(ctx, "processing event not recorded", "error", err)
	}
}

func (o *Orchestrator) recordUsage(ctx context.Context, log *slog.Logger, c calls.Call, attempt int, audioMs int64) {
	if o.usage == nil {
		return
	}
	rec, replayed, err := o.usage.RecordRun(ctx, usage.RecordRunRequest{
		OrgID:           c.OrgID,
		CallID:          c.ID,
		RunAttempt:      attempt,
		AudioDurationMs: audioMs,
	})
	if err != nil {
		// Metering must not fail a completed run; ops reconcile from events.
		log.ErrorContext(ctx, "usage not recorded", "error", err)
		return
	}
	if replayed {
		log.InfoContext(ctx, "usage replayed", "idempotency_key", rec.IdempotencyKey)
	}
}

func (o *Orchestrator) notify(ctx context.Context, c calls.Call, attempt int, core extraction.CoreExtraction, durationSec int) {
	if o.notifier == nil {
		return
	}
	company := core.Raw.CustomerCompany
	if company == "" {
		company = "customer"
	}
	o.notifier.CallProcessed(ctx, CompletionNotice{
		OrgID:           c.OrgID,
		UserID:          c.UserID,
		CallID:          c.ID,
		RunAttempt:      attempt,
		CompanyName:     company,
		DurationSeconds: durationSec,
	})
}
