package domain

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the current status of a download job
type DownloadStatus string

const (
	StatusQueued     DownloadStatus = "queued"
	StatusProcessing DownloadStatus = "processing"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
	StatusCancelled  DownloadStatus = "cancelled"
)

// DownloadKind distinguishes single item jobs from collection jobs
type DownloadKind string

const (
	KindItem       DownloadKind = "item"       // single video
	KindCollection DownloadKind = "collection" // playlist
)

// Download represents a queued download job
type Download struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	URL          string         `json:"url" gorm:"not null"`
	Kind         DownloadKind   `json:"kind" gorm:"not null;index"`
	Quality      string         `json:"quality" gorm:"default:best"`
	Filename     string         `json:"filename,omitempty"`
	MaxWorkers   int            `json:"max_workers,omitempty"`
	Status       DownloadStatus `json:"status" gorm:"not null;index"`
	Priority     int            `json:"priority" gorm:"default:0;index"`
	RetryCount   int            `json:"retry_count" gorm:"default:0"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Title        string         `json:"title,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Metadata     string         `json:"metadata,omitempty" gorm:"type:text"` // JSON failure records
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewDownload creates a new download job
func NewDownload(rawURL string, kind DownloadKind, quality string) *Download {
	if quality == "" {
		quality = string(QualityBest)
	}
	now := time.Now()
	return &Download{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Kind:      kind,
		Quality:   quality,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessing marks the download as processing
func (d *Download) MarkProcessing() {
	d.Status = StatusProcessing
	now := time.Now()
	d.StartedAt = &now
	d.UpdatedAt = now
}

// MarkCompleted marks the download as completed
func (d *Download) MarkCompleted(filePath string) {
	d.Status = StatusCompleted
	d.FilePath = filePath
	d.ErrorMessage = ""
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// MarkFailed marks the download as failed
func (d *Download) MarkFailed(err error) {
	d.Status = StatusFailed
	d.ErrorMessage = err.Error()
	d.UpdatedAt = time.Now()
}

// MarkCancelled marks the download as cancelled
func (d *Download) MarkCancelled() {
	d.Status = StatusCancelled
	d.UpdatedAt = time.Now()
}

// RecordCollection stores the outcome counts and failure records of a collection job
func (d *Download) RecordCollection(succeeded int, failures []FailureRecord) error {
	d.Succeeded = succeeded
	d.Failed = len(failures)
	if len(failures) == 0 {
		d.Metadata = ""
		return nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return err
	}
	d.Metadata = string(data)
	return nil
}

// Failures decodes the failure records stored on the job
func (d *Download) Failures() ([]FailureRecord, error) {
	if d.Metadata == "" {
		return nil, nil
	}
	var failures []FailureRecord
	if err := json.Unmarshal([]byte(d.Metadata), &failures); err != nil {
		return nil, err
	}
	return failures, nil
}

// ResetForRetry puts a failed or cancelled job back in the queue
func (d *Download) ResetForRetry() {
	d.Status = StatusQueued
	d.RetryCount = 0
	d.ErrorMessage = ""
	d.Succeeded = 0
	d.Failed = 0
	d.Metadata = ""
	d.StartedAt = nil
	d.CompletedAt = nil
	d.UpdatedAt = time.Now()
}

// IncrementRetry increments the retry count
func (d *Download) IncrementRetry() {
	d.RetryCount++
	d.UpdatedAt = time.Now()
}

// CanRetry checks if the download can be retried
func (d *Download) CanRetry(maxRetries int) bool {
	return d.RetryCount < maxRetries && d.Status == StatusFailed
}

// IsTerminal checks if the download is in a terminal state
func (d *Download) IsTerminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusCancelled
}

// IsPending checks if the download is pending
func (d *Download) IsPending() bool {
	return d.Status == StatusQueued
}

// IsProcessing checks if the download is currently processing
func (d *Download) IsProcessing() bool {
	return d.Status == StatusProcessing
}

// DetectKind reports whether a URL addresses a playlist or a single video
func DetectKind(rawURL string) DownloadKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindItem
	}
	q := u.Query()
	if q.Get("list") != "" && (q.Get("v") == "" || u.Path == "/playlist") {
		return KindCollection
	}
	return KindItem
}

// ValidateKind checks if a download kind is valid
func ValidateKind(kind DownloadKind) bool {
	return kind == KindItem || kind == KindCollection
}
