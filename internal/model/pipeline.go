// Package model defines the domain types shared across the content-acquisition core.
package model

import "time"

// StageStatus is the status of a single pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Terminal reports whether the status will never change again.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// PipelineStatus is the aggregate status of a PipelineRun.
type PipelineStatus string

const (
	PipelineRunning    PipelineStatus = "running"
	PipelineCompleted  PipelineStatus = "completed"
	PipelineFailed     PipelineStatus = "failed"
	PipelineVPNWaiting PipelineStatus = "vpn_waiting"
)

// Terminal reports whether the aggregate status is final.
func (s PipelineStatus) Terminal() bool {
	switch s {
	case PipelineCompleted, PipelineFailed, PipelineVPNWaiting:
		return true
	default:
		return false
	}
}

// Trigger identifies what caused a PipelineRun to be created.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerRSS       Trigger = "rss"
	TriggerScheduled Trigger = "scheduled"
)

// Stage identifies one of the six persisted pipeline stages; StageTorrent
// covers both submitting the torrent and polling it to completion.
type Stage string

const (
	StageVPN        Stage = "vpn"
	StageTorrent    Stage = "torrent"
	StageMetadata   Stage = "metadata"
	StageSubtitle   Stage = "subtitle"
	StageEncoding   Stage = "encoding"
	StagePublishing Stage = "publishing"
)

// MandatoryStages are executed strictly in order; any failure stops the run.
var MandatoryStages = []Stage{StageVPN, StageTorrent}

// OptionalStages degrade gracefully: unreachable siblings skip, HTTP errors fail.
var OptionalStages = []Stage{StageMetadata, StageSubtitle, StageEncoding, StagePublishing}

// JSONBlob is a free-form forwarder payload, persisted as JSON text.
type JSONBlob map[string]any

// PipelineMetadata is the typed record of fields the orchestrator inspects.
// Anything else sibling services need forwarded rides in Extra.
type PipelineMetadata struct {
	MagnetURL         string   `json:"magnet_url,omitempty"`
	TorrentURL        string   `json:"torrent_url,omitempty"`
	DownloadPath      string   `json:"download_path,omitempty"`
	TMDBID            string   `json:"tmdb_id,omitempty"`
	EncodingProfileID string   `json:"encoding_profile_id,omitempty"`
	Extra             JSONBlob `json:"extra,omitempty"`
}

// StageFields holds the status and timestamps of one pipeline stage.
type StageFields struct {
	Status      StageStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// PipelineRun is a single traversal of the 7-stage acquisition workflow.
type PipelineRun struct {
	ID            int64
	AccountID     string
	Trigger       Trigger
	ContentTitle  string
	ContentType   string
	Status        PipelineStatus
	Stages        map[Stage]StageFields
	Metadata      PipelineMetadata
	TorrentDLID   string
	EncodingJobID string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPipelineRun constructs a run with all stages pending.
func NewPipelineRun(accountID, title, contentType string, trigger Trigger, meta PipelineMetadata) *PipelineRun {
	now := time.Now().UTC()
	stages := make(map[Stage]StageFields, 6)
	for _, s := range append(append([]Stage{}, MandatoryStages...), OptionalStages...) {
		stages[s] = StageFields{Status: StagePending}
	}
	return &PipelineRun{
		AccountID:    accountID,
		Trigger:      trigger,
		ContentTitle: title,
		ContentType:  contentType,
		Status:       PipelineRunning,
		Stages:       stages,
		Metadata:     meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// StageStatus returns the current status of a stage, defaulting to pending.
func (p *PipelineRun) StageStatus(s Stage) StageStatus {
	if f, ok := p.Stages[s]; ok {
		return f.Status
	}
	return StagePending
}

// EnterStage marks a stage running and stamps StartedAt. It sets the status
// whatever the stage's current status is; it does not check for regression.
func (p *PipelineRun) EnterStage(s Stage, now time.Time) {
	f := p.Stages[s]
	f.Status = StageRunning
	f.StartedAt = &now
	p.Stages[s] = f
	p.UpdatedAt = now
}

// FinishStage transitions a stage to a terminal status and stamps CompletedAt.
// It is a no-op if the stage is already terminal, preserving invariant (iii)
// of §3 (once completed, no stage field may regress).
func (p *PipelineRun) FinishStage(s Stage, status StageStatus, now time.Time) {
	f := p.Stages[s]
	if f.Status.Terminal() {
		return
	}
	f.Status = status
	f.CompletedAt = &now
	p.Stages[s] = f
	p.UpdatedAt = now
}
