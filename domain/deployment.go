package domain

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// ResultURLWeb is the key of the public site URL in DeploymentAttempt.ResultURLs.
const ResultURLWeb = "web"

// AttemptState is the lifecycle state of a deployment attempt.
type AttemptState int

const (
	AttemptStateQueued AttemptState = iota
	AttemptStateProvisioning
	AttemptStateProgressing
	AttemptStateSuccess
	AttemptStateFailed
	AttemptStateCancelled
)

func (s AttemptState) String() string {
	switch s {
	case AttemptStateQueued:
		return "queued"
	case AttemptStateProvisioning:
		return "provisioning"
	case AttemptStateProgressing:
		return "progressing"
	case AttemptStateSuccess:
		return "success"
	case AttemptStateFailed:
		return "failed"
	case AttemptStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func ParseAttemptState(s string) (AttemptState, error) {
	switch s {
	case "queued":
		return AttemptStateQueued, nil
	case "provisioning":
		return AttemptStateProvisioning, nil
	case "progressing":
		return AttemptStateProgressing, nil
	case "success":
		return AttemptStateSuccess, nil
	case "failed":
		return AttemptStateFailed, nil
	case "cancelled":
		return AttemptStateCancelled, nil
	default:
		return AttemptStateQueued, fmt.Errorf("invalid attempt state: %q", s)
	}
}

func (s AttemptState) IsTerminal() bool {
	return s == AttemptStateSuccess || s == AttemptStateFailed || s == AttemptStateCancelled
}

// CanTransitionTo enforces queued -> provisioning -> progressing -> success,
// with failed and cancelled reachable from any non-terminal state.
func (s AttemptState) CanTransitionTo(next AttemptState) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case AttemptStateFailed, AttemptStateCancelled:
		return true
	case AttemptStateSuccess:
		return s == AttemptStateProgressing
	case AttemptStateProvisioning, AttemptStateProgressing:
		return next > s
	default:
		return false
	}
}

// Stage is the coarse position of an attempt inside the hosting pipeline.
// Each stage owns a band of the 0..100 progress scale.
type Stage int

const (
	StagePreparing Stage = iota
	StageUploading
	StageConfiguring
	StageFinalizing
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageUploading:
		return "uploading"
	case StageConfiguring:
		return "configuring"
	case StageFinalizing:
		return "finalizing"
	case StageComplete:
		return "complete"
	default:
		return "preparing"
	}
}

// Description is the status line shown while the stage runs.
func (s Stage) Description() string {
	switch s {
	case StageUploading:
		return "Uploading to hosting service..."
	case StageConfiguring:
		return "Configuring deployment..."
	case StageFinalizing:
		return "Finalizing deployment..."
	case StageComplete:
		return "Deployment complete!"
	default:
		return "Preparing your files..."
	}
}

// Band returns the inclusive progress range of the stage.
func (s Stage) Band() (lo, hi int) {
	switch s {
	case StageUploading:
		return 20, 60
	case StageConfiguring:
		return 60, 95
	case StageFinalizing:
		return 95, 100
	case StageComplete:
		return 100, 100
	default:
		return 0, 20
	}
}

// ProgressFor maps a provider-reported percentage (negative when unknown)
// into the stage's band.
func (s Stage) ProgressFor(percent int) int {
	lo, hi := s.Band()
	if percent < 0 {
		return lo
	}
	if percent < lo {
		return lo
	}
	if percent > hi {
		return hi
	}
	return percent
}

// DeploymentAttempt is one execution of a DeploymentRequest. Values handed
// out by the pipeline are snapshots and safe to keep.
type DeploymentAttempt struct {
	ID         uuid.UUID
	Request    DeploymentRequest
	State      AttemptState
	Stage      Stage
	Progress   int
	ResultURLs map[string]string
	Error      *Error
	StartedAt  time.Time
	EndedAt    *time.Time
}

func NewDeploymentAttempt(req DeploymentRequest, now time.Time) DeploymentAttempt {
	return DeploymentAttempt{
		ID:        uuid.New(),
		Request:   req,
		State:     AttemptStateQueued,
		Stage:     StagePreparing,
		StartedAt: now,
	}
}

// Clone returns a copy that shares no mutable state with a.
func (a DeploymentAttempt) Clone() DeploymentAttempt {
	c := a
	if a.ResultURLs != nil {
		c.ResultURLs = maps.Clone(a.ResultURLs)
	}
	if a.EndedAt != nil {
		t := *a.EndedAt
		c.EndedAt = &t
	}
	if a.Error != nil {
		e := *a.Error
		c.Error = &e
	}
	c.Request.EnvVars = append([]EnvVar(nil), a.Request.EnvVars...)
	c.Request.Source.Assets = append([]Asset(nil), a.Request.Source.Assets...)
	return c
}

func (a DeploymentAttempt) WebURL() string {
	return a.ResultURLs[ResultURLWeb]
}

func (a DeploymentAttempt) Duration() time.Duration {
	if a.EndedAt == nil {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}
