package core

import (
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

// Stage names used when observing pipeline timings.
const (
	StageParse    = "parse"
	StageEdit     = "edit"
	StageValidate = "validate"
	StageCommit   = "commit"
	StageDiscard  = "discard"
)

// Outcomes reported with each stage.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // typed caller-facing failure
	OutcomeFailed   = "failed"
)

// Observer receives pipeline measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveStage(stage string, t catalog.EntityType, outcome string, d time.Duration)
	ObserveRows(t catalog.EntityType, rows int)
	ObserveIssues(t catalog.EntityType, issues Issues)
	ObserveCommit(t catalog.EntityType, created, updated int)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, catalog.EntityType, string, time.Duration) {}
func (nopObserver) ObserveRows(catalog.EntityType, int)                          {}
func (nopObserver) ObserveIssues(catalog.EntityType, Issues)                     {}
func (nopObserver) ObserveCommit(catalog.EntityType, int, int)                   {}

// outcomeOf classifies err for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if IsUserFacing(err) {
		return OutcomeRejected
	}
	return OutcomeFailed
}
