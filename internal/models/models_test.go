// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueuedSubmission_TableName verifies the persisted table name.
func TestQueuedSubmission_TableName(t *testing.T) {
	assert.Equal(t, "queued_submissions", QueuedSubmission{}.TableName())
}

// TestQueuedSubmission_JSONFieldNames verifies the wire names used by the form UI.
func TestQueuedSubmission_JSONFieldNames(t *testing.T) {
	q := QueuedSubmission{
		ID:           "q-1",
		SubmissionID: "sub-1",
		ResponseData: map[string]interface{}{"passOrFail": "Pass"},
		QueuedAt:     1700000000000,
	}

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"id", "submissionId", "responseData", "queuedAt", "retryCount"} {
		assert.Contains(t, m, key)
	}
	assert.NotContains(t, m, "gps")
	assert.NotContains(t, m, "deviceInfo")
}

// TestQueuedSubmission_CompletionPayload verifies the offline flag is always set.
func TestQueuedSubmission_CompletionPayload(t *testing.T) {
	q := &QueuedSubmission{
		SubmissionID: "sub-1",
		ResponseData: map[string]interface{}{"passOrFail": "Pass"},
		GPS:          &GPS{Latitude: "40.1", Longitude: "-75.2", Accuracy: "5"},
	}

	data, err := json.Marshal(q.CompletionPayload())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"responseData":{"passOrFail":"Pass"},"gps":{"latitude":"40.1","longitude":"-75.2","accuracy":"5"},"offline":true}`,
		string(data))
}
