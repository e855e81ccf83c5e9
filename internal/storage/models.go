package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outcome is the classification of a single probe.
type Outcome string

const (
	OutcomeOnline          Outcome = "online"
	OutcomeStatusCodeError Outcome = "status_code_error"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeOffline         Outcome = "offline"
)

// IsFailure reports whether o is one of the failure kinds.
func (o Outcome) IsFailure() bool {
	switch o {
	case OutcomeStatusCodeError, OutcomeTimeout, OutcomeOffline:
		return true
	}
	return false
}

type IncidentStatus string

const (
	IncidentActive   IncidentStatus = "active"
	IncidentResolved IncidentStatus = "resolved"
)

// Target is a monitored endpoint. Rows are owned by the dashboard; this
// service only reads them.
type Target struct {
	ID                 string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Name               string    `gorm:"not null" json:"name"`
	URL                string    `gorm:"not null" json:"url"`
	CheckFrequency     int       `gorm:"default:60" json:"check_frequency"`
	Timeout            int       `gorm:"default:10" json:"timeout"`
	ExpectedStatusCode int       `gorm:"default:200" json:"expected_status_code"`
	IsActive           bool      `gorm:"index" json:"is_active"`
	EmailNotifications bool      `json:"email_notifications"`
	UserID             string    `gorm:"index;type:varchar(36)" json:"user_id"`
}

func (Target) TableName() string { return "monitors" }

func (t *Target) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Interval returns the configured check frequency, or def seconds when the
// row holds a non-positive value.
func (t Target) Interval(def int) time.Duration {
	if t.CheckFrequency <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(t.CheckFrequency) * time.Second
}

// TimeoutDuration mirrors Interval for the probe deadline.
func (t Target) TimeoutDuration(def int) time.Duration {
	if t.Timeout <= 0 {
		return time.Duration(def) * time.Second
	}
	return time.Duration(t.Timeout) * time.Second
}

// CheckResult is one probe outcome. Rows are append-only.
type CheckResult struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	MonitorID    string    `gorm:"index:idx_checks_monitor_checked;type:varchar(36);not null" json:"monitor_id"`
	Status       Outcome   `gorm:"type:varchar(32);not null" json:"status"`
	ResponseTime *int64    `json:"response_time"`
	StatusCode   *int      `json:"status_code"`
	ErrorMessage *string   `json:"error_message"`
	CheckedAt    time.Time `gorm:"index:idx_checks_monitor_checked" json:"checked_at"`
}

func (CheckResult) TableName() string { return "monitor_checks" }

func (c *CheckResult) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Description returns the error detail, or "" for a clean result.
func (c CheckResult) Description() string {
	if c.ErrorMessage == nil {
		return ""
	}
	return *c.ErrorMessage
}

// Incident spans one continuous failure episode of a single kind.
type Incident struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	MonitorID       string         `gorm:"index:idx_incidents_open;type:varchar(36);not null" json:"monitor_id"`
	Name            string         `json:"name"`
	URL             string         `json:"url"`
	Type            Outcome        `gorm:"index:idx_incidents_open;type:varchar(32);not null" json:"type"`
	Status          IncidentStatus `gorm:"index:idx_incidents_open;type:varchar(16);not null" json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	ResolvedAt      *time.Time     `json:"resolved_at"`
	DurationMinutes *int           `json:"duration_minutes"`
	Description     string         `json:"description"`
	LastNotifiedAt  *time.Time     `json:"last_notified_at"`
}

func (Incident) TableName() string { return "incidents" }

func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// User is the subset of the account table needed to address alerts.
type User struct {
	ID    string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email string `json:"email"`
}

func (User) TableName() string { return "users" }
