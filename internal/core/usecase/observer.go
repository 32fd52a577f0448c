package usecase

import (
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Enhancement outcomes reported to PipelineObserver.
const (
	EnhancementApplied    = "applied"
	EnhancementFailed     = "failed"
	EnhancementLocalOnly  = "skipped_local_only"
	EnhancementNotNeeded  = "not_needed"
	EnhancementNoProvider = "no_provider"
)

type PipelineObserver interface {
	ObserveStage(stage domain.Stage, elapsed time.Duration)
	ObserveUpload(status domain.UploadStatus, code domain.ErrorCode, elapsed time.Duration)
	ObserveEnhancement(outcome string)
}

type QueueObserver interface {
	ObserveQueue(running, pending int)
	ObserveItemStarted(waited time.Duration)
	ObserveItemFinished(state domain.ItemState)
}
