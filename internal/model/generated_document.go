package model

import "time"

// GeneratedDocument is a markdown deliverable produced for a project:
// an execution-plan style document (bep, lod, eir, requirements,
// checklist, minutes, iso) or a bep_verification_report.
type GeneratedDocument struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ProjectID       uint      `gorm:"not null;index" json:"project_id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	DocType         string    `gorm:"size:64;not null;index" json:"doc_type"`
	Title           string    `gorm:"size:256;not null" json:"title"`
	ContentMarkdown string    `gorm:"type:mediumtext;not null" json:"content_markdown"`
	SummaryStatus   string    `gorm:"size:16" json:"summary_status"` // verification reports only
	FailCount       int       `json:"fail_count"`
	WarningCount    int       `json:"warning_count"`
	CreatedAt       time.Time `json:"created_at"`
}
