package models

// Requests for the anomaly HTTP endpoints. Defined in domain for consistency and reuse.

type DetectRoomRequest struct {
	RoomID      string  `param:"room_id" json:"room_id" validate:"required"`
	Days        int     `query:"days" json:"days" default:"7" validate:"gte=1,lte=90"`
	Sensitivity float64 `query:"sensitivity" json:"sensitivity" default:"0.8" validate:"gte=0.5,lte=1.0"`
}

type DetectFarmRequest struct {
	FarmID   string `param:"farm_id" json:"farm_id" validate:"required"`
	Days     int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=90"`
	Severity string `query:"severity" json:"severity" validate:"omitempty,oneof=low medium high"`
}

type FeedbackRequest struct {
	AnomalyID string `json:"anomaly_id" validate:"required"`
	IsReal    *bool  `json:"is_real" validate:"required"`
	Notes     string `json:"notes" validate:"omitempty,max=2000"`
}

type GetAnomalyRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}

// DetectRoomResponse wraps a room detection pass.
type DetectRoomResponse struct {
	RoomID     string          `json:"room_id"`
	PeriodDays int             `json:"period_days"`
	Anomalies  []AnomalyRecord `json:"anomalies"`
	Count      int             `json:"count"`
}
