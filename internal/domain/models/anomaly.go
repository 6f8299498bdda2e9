package models

import "time"

// Severity is a discrete tier derived from the combined anomaly score.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValidSeverity returns true if s is a known tier.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// AnomalyType categorizes what kind of structure flagged the point.
type AnomalyType string

const (
	AnomalyUnivariate   AnomalyType = "univariate"
	AnomalyMultivariate AnomalyType = "multivariate"
	AnomalyTemporal     AnomalyType = "temporal"
)

// ConfirmationState tracks the feedback lifecycle of a record.
// Records are never deleted; dismissal is a state, preserving audit history.
type ConfirmationState string

const (
	StateDetected  ConfirmationState = "detected"
	StateConfirmed ConfirmationState = "confirmed"
	StateDismissed ConfirmationState = "dismissed"
)

// AnomalyRecord is a persisted flagged observation.
type AnomalyRecord struct {
	ID            string            `json:"id"`
	RoomID        string            `json:"room_id"`
	FarmID        string            `json:"farm_id"`
	Timestamp     time.Time         `json:"timestamp"`
	MetricName    MetricName        `json:"metric_name"`
	Value         float64           `json:"value"`
	CombinedScore float64           `json:"combined_score"`
	AnomalyType   AnomalyType       `json:"anomaly_type"`
	Severity      Severity          `json:"severity"`
	Description   string            `json:"description"`
	State         ConfirmationState `json:"confirmation_state"`
	FeedbackNotes string            `json:"feedback_notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ApplyFeedback transitions the record per human feedback. Transitions are
// idempotent: re-labeling an already resolved record only refreshes the
// notes and the update timestamp.
func (r *AnomalyRecord) ApplyFeedback(isReal bool, notes string, now time.Time) {
	if isReal {
		r.State = StateConfirmed
	} else {
		r.State = StateDismissed
	}
	r.FeedbackNotes = notes
	r.UpdatedAt = now
}

// FarmAnomalySummary aggregates a farm-wide detection pass.
type FarmAnomalySummary struct {
	FarmID         string           `json:"farm_id"`
	PeriodDays     int              `json:"period_days"`
	Anomalies      []AnomalyRecord  `json:"anomalies"`
	ByRoom         map[string]int   `json:"by_room"`
	BySeverity     map[Severity]int `json:"by_severity"`
	TotalAnomalies int              `json:"total_anomalies"`
}
