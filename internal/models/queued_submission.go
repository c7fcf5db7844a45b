// Package models provides data model definitions for the offline submission queue.
package models

// GPS is the location captured when the form was submitted.
type GPS struct {
	Latitude  string `json:"latitude" validate:"required"`
	Longitude string `json:"longitude" validate:"required"`
	Accuracy  string `json:"accuracy" validate:"required"`
}

// QueuedSubmission is a form completion saved locally because it could not
// be delivered. A record exists only until its delivery is acknowledged.
type QueuedSubmission struct {
	ID           string                 `db:"id" json:"id"`
	SubmissionID string                 `db:"submission_id" json:"submissionId"`
	ResponseData map[string]interface{} `db:"response_data" json:"responseData"`
	GPS          *GPS                   `db:"gps" json:"gps,omitempty"`
	DeviceInfo   map[string]interface{} `db:"device_info" json:"deviceInfo,omitempty"`
	QueuedAt     int64                  `db:"queued_at" json:"queuedAt"` // unix milliseconds
	RetryCount   int                    `db:"retry_count" json:"retryCount"`
}

// TableName returns the table name for QueuedSubmission.
func (QueuedSubmission) TableName() string {
	return "queued_submissions"
}

// CompletionPayload converts the record into the body sent to the remote
// completion endpoint.
func (q *QueuedSubmission) CompletionPayload() CompletionPayload {
	return CompletionPayload{
		ResponseData: q.ResponseData,
		GPS:          q.GPS,
		DeviceInfo:   q.DeviceInfo,
		Offline:      true,
	}
}

// NewSubmission is the caller-supplied part of a QueuedSubmission.
type NewSubmission struct {
	SubmissionID string                 `json:"submissionId" validate:"required,notblank"`
	ResponseData map[string]interface{} `json:"responseData" validate:"required"`
	GPS          *GPS                   `json:"gps,omitempty" validate:"omitempty"`
	DeviceInfo   map[string]interface{} `json:"deviceInfo,omitempty"`
}

// CompletionPayload is the JSON body of an offline-originated completion.
type CompletionPayload struct {
	ResponseData map[string]interface{} `json:"responseData"`
	GPS          *GPS                   `json:"gps,omitempty"`
	DeviceInfo   map[string]interface{} `json:"deviceInfo,omitempty"`
	Offline      bool                   `json:"offline"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped,omitempty"`
}
