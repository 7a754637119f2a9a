package dto

import "time"

// AckRecordResponse represents one journaled ack in API responses
type AckRecordResponse struct {
	GUID       string    `json:"guid" example:"0000000000003039CD8101000000270F"`
	QueueURI   string    `json:"queue_uri" example:"bmq://bmq.test.mem.priority/orders"`
	Status     int       `json:"status" example:"0"`
	StatusName string    `json:"status_name" example:"SUCCESS"`
	ClientID   string    `json:"client_id,omitempty" example:"producer-1"`
	PostedAt   time.Time `json:"posted_at" example:"2026-01-18T12:34:56.789Z"`
	AckedAt    time.Time `json:"acked_at" example:"2026-01-18T12:34:56.812Z"`
	LatencyMS  int64     `json:"latency_ms" example:"23"`
}

// AckListResponse wraps the acks of one queue with metadata
type AckListResponse struct {
	Acks       []*AckRecordResponse `json:"acks"`
	Total      int                  `json:"total" example:"150"`
	QueueURI   string               `json:"queue_uri" example:"bmq://bmq.test.mem.priority/orders"`
	FailedOnly bool                 `json:"failed_only,omitempty"`
	StartTime  *time.Time           `json:"start_time,omitempty" example:"2026-01-18T00:00:00Z"`
	EndTime    *time.Time           `json:"end_time,omitempty" example:"2026-01-18T23:59:59Z"`
}
