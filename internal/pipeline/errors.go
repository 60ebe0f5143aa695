package pipeline

import "errors"

// Fatal errors fail the run; the call becomes re-triggerable.
var (
	ErrMissingAudio = errors.New("pipeline: call has no audio url")
)

// Stage names used in events, logs, and wrapped errors.
const (
	StagePrepare            = "prepare"
	StageTranscription      = "transcription"
	StageExtraction         = "extraction"
	StageTemplateExtraction = "template_extraction"
	StageFinalize           = "finalize"
)
