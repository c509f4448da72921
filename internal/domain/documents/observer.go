package documents

import (
	"time"

	"costledger/internal/core/entity"
)

// Observer receives transition outcomes, typically for metrics.
type Observer interface {
	TransitionFinished(docType entity.DocumentType, action entity.Action, elapsed time.Duration, err error)
	AnomaliesRecorded(docType entity.DocumentType, count int)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) TransitionFinished(entity.DocumentType, entity.Action, time.Duration, error) {}

func (NopObserver) AnomaliesRecorded(entity.DocumentType, int) {}
