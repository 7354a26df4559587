package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptState_CanTransitionTo(t *testing.T) {
	q, pv, pg := AttemptStateQueued, AttemptStateProvisioning, AttemptStateProgressing
	s, f, c := AttemptStateSuccess, AttemptStateFailed, AttemptStateCancelled

	tests := []struct {
		from, to AttemptState
		want     bool
	}{
		{q, pv, true},
		{pv, pg, true},
		{q, pg, true},
		{pg, s, true},
		{q, f, true},
		{pv, c, true},
		{pg, c, true},
		{q, s, false},
		{pv, s, false},
		{pg, pv, false},
		{pg, pg, false},
		{s, f, false},
		{f, s, false},
		{c, f, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStage_ProgressFor(t *testing.T) {
	tests := []struct {
		stage   Stage
		percent int
		want    int
	}{
		{StagePreparing, -1, 0},
		{StagePreparing, 50, 20},
		{StageUploading, 35, 35},
		{StageUploading, 5, 20},
		{StageConfiguring, -1, 60},
		{StageFinalizing, 97, 97},
		{StageComplete, -1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.ProgressFor(tt.percent))
		})
	}
}

func TestDeploymentAttempt_CloneIsIndependent(t *testing.T) {
	now := time.Now()
	a := NewDeploymentAttempt(DeploymentRequest{
		Source:  RepositorySource("octo/site"),
		EnvVars: []EnvVar{{Key: "A", Value: "1"}},
	}, now)
	a.ResultURLs = map[string]string{ResultURLWeb: "https://site.example"}
	a.EndedAt = &now

	c := a.Clone()
	c.ResultURLs[ResultURLWeb] = "changed"
	c.Request.EnvVars[0].Value = "2"
	*c.EndedAt = now.Add(time.Hour)

	assert.Equal(t, "https://site.example", a.WebURL())
	assert.Equal(t, "1", a.Request.EnvVars[0].Value)
	assert.Equal(t, now, *a.EndedAt)
}

func TestHistoryStatusFor(t *testing.T) {
	status, ok := HistoryStatusFor(AttemptStateSuccess)
	assert.True(t, ok)
	assert.Equal(t, HistoryStatusSuccess, status)

	status, ok = HistoryStatusFor(AttemptStateFailed)
	assert.True(t, ok)
	assert.Equal(t, HistoryStatusFailed, status)

	_, ok = HistoryStatusFor(AttemptStateCancelled)
	assert.False(t, ok)
}

func TestHistoryRecord_Validate(t *testing.T) {
	valid := NewHistoryRecord("https://site.example", time.Now(), HistoryStatusSuccess)
	assert.NoError(t, valid.Validate())

	for name, rec := range map[string]HistoryRecord{
		"empty url":  {Date: "2024-01-01", Status: HistoryStatusSuccess},
		"empty date": {URL: "https://x", Status: HistoryStatusFailed},
		"bad status": {URL: "https://x", Date: "2024-01-01", Status: "Pending"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, rec.Validate(), ErrValidation)
		})
	}
}
