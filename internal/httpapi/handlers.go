package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"freightcall-platform/internal/auth"
	"freightcall-platform/internal/calls"
	"freightcall-platform/internal/jobs"
	"freightcall-platform/internal/pipeline"
	"freightcall-platform/internal/recording"
	"freightcall-platform/internal/reporting"
	"freightcall-platform/internal/transcripts"

	"github.com/gin-gonic/gin"
)

// Trigger claims a processing run on a call.
type Trigger interface {
	Trigger(ctx context.Context, orgID, callID string) (calls.Call, error)
}

// Submitter queues a claimed run for a worker.
type Submitter interface {
	Submit(ctx context.Context, orgID, callID string, runAttempt int) (jobs.Job, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth         *auth.Manager
	Calls        calls.Store
	Transcripts  transcripts.Store
	Trigger      Trigger
	Submitter    Submitter
	Cache        pipeline.ProgressCache // optional status fast path
	Reporting    *reporting.Service
	Intake       *recording.Intake
	IntakeSecret string
	Logger       *slog.Logger
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.OrgID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, org_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.OrgID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Processing ---

// TriggerProcessing claims a run attempt and queues the pipeline.
//
// Responses: 202 on success, 404 unknown call, 409 run in flight,
// 422 call has no audio.
func (h Handlers) TriggerProcessing(c *gin.Context) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	claimed, err := h.Trigger.Trigger(c.Request.Context(), orgID, callID)
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case errors.Is(err, pipeline.ErrMissingAudio):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "call has no audio url"})
		return
	case errors.Is(err, calls.ErrRunInFlight):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "processing already in progress"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "trigger failed"})
		return
	}

	if _, err := h.Submitter.Submit(c.Request.Context(), orgID, claimed.ID, claimed.RunAttempt); err != nil {
		// The claim stands; the run can be re-triggered after the sweeper
		// fails it, so surface the queueing failure honestly.
		h.Logger.ErrorContext(c.Request.Context(), "job submission failed", "call_id", claimed.ID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing not queued"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"call_id": claimed.ID, "run_attempt": claimed.RunAttempt})
}

// GetCallStatus serves status polls. Reads the progress cache first so
// mid-run polling avoids the database; misses fall back to the store.
func (h Handlers) GetCallStatus(c *gin.Context) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return
	}
	callID := c.Param("call_id")

	if h.Cache != nil {
		// Tenancy check still goes through the store on the first poll of
		// unknown ids; the cache only holds calls the org started.
		if _, err := h.Calls.Get(c.Request.Context(), orgID, callID); err == nil {
			if snap, ok, cerr := h.Cache.GetProgress(c.Request.Context(), callID); cerr == nil && ok {
				c.JSON(http.StatusOK, statusResponse(snap.Status, snap.Progress, snap.Message, snap.ErrorMessage))
				return
			}
		}
	}

	call, err := h.Calls.Get(c.Request.Context(), orgID, callID)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, statusResponse(call.Status, call.ProcessingProgress, call.ProcessingMessage, call.ErrorMessage))
}

func statusResponse(status calls.CallStatus, progress int, message, errMsg string) gin.H {
	resp := gin.H{
		"status":              status,
		"processing_progress": progress,
		"processing_message":  message,
	}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	return resp
}

// GetCall returns the call with its transcript summary and extracted fields.
func (h Handlers) GetCall(c *gin.Context) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return
	}
	callID := c.Param("call_id")

	call, err := h.Calls.Get(c.Request.Context(), orgID, callID)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}

	fields, err := h.Calls.ListFields(c.Request.Context(), callID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "field lookup failed"})
		return
	}

	resp := gin.H{"call": call, "extracted_fields": fields}

	t, err := h.Transcripts.GetByCall(c.Request.Context(), callID)
	if err == nil {
		resp["transcript"] = gin.H{
			"full_text":              t.FullText,
			"speaker_roles":          t.SpeakerRoles,
			"avg_confidence":         t.AvgConfidence,
			"audio_duration_seconds": t.AudioDurationSeconds,
			"word_count":             t.WordCount,
		}
	} else if !errors.Is(err, transcripts.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transcript lookup failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// --- Reporting ---

func (h Handlers) ProcessingReport(c *gin.Context) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return
	}
	rng, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.Reporting.ProcessingSummary(c.Request.Context(), reporting.ProcessingSummaryRequest{
		OrgID: orgID,
		Range: rng,
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SpendReport(c *gin.Context) {
	orgID, err := auth.OrgID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "org_id required"})
		return
	}
	rng, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.Reporting.SpendSummary(c.Request.Context(), reporting.SpendSummaryRequest{
		OrgID:    orgID,
		Range:    rng,
		Currency: c.Query("currency"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// parseRange reads from/to query params (RFC3339), defaulting to the last
// 30 days.
func parseRange(c *gin.Context) (reporting.TimeRange, error) {
	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.AddDate(0, 0, -30), To: now}

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, errors.New("invalid from timestamp")
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return reporting.TimeRange{}, errors.New("invalid to timestamp")
		}
		rng.To = t
	}
	return rng, nil
}

// --- Webhooks ---

// RecordingWebhook accepts recording-source callbacks. Public endpoint;
// authenticated by HMAC signature, not JWT.
func (h Handlers) RecordingWebhook(c *gin.Context) {
	body, err := recording.VerifySignature(c.Request, h.IntakeSecret)
	if errors.Is(err, recording.ErrBadSignature) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad signature"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var p recording.InboundRecording
	if err := json.Unmarshal(body, &p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	call, err := h.Intake.Accept(c.Request.Context(), p)
	if errors.Is(err, recording.ErrInvalidPayload) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "intake failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"call_id": call.ID, "status": call.Status})
}
