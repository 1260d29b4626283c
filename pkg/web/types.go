// Package web provides the HTTP API for managing reports and inspecting
// their execution history.
package web

import (
	"time"

	"github.com/briefwell/briefwell/pkg/models"
)

// RunRequest is the optional body of a run-now or resend request.
type RunRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// ExecutionResponse is the API view of an execution record.
type ExecutionResponse struct {
	ReportID     string     `json:"report_id"`
	PeriodKey    string     `json:"period_key"`
	Status       string     `json:"status"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Delivered    bool       `json:"delivered"`
	DeliveryError string    `json:"delivery_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toExecutionResponse(record *models.ExecutionRecord) ExecutionResponse {
	resp := ExecutionResponse{
		ReportID:      record.ReportID,
		PeriodKey:     record.PeriodKey,
		Status:        string(record.Status),
		EndTime:       record.EndTime,
		AttemptCount:  record.AttemptCount,
		ErrorKind:     string(record.ErrorKind),
		ErrorMessage:  record.ErrorMessage,
		Delivered:     record.Delivered,
		DeliveryError: record.DeliveryError,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}

	if !record.StartTime.IsZero() {
		start := record.StartTime
		resp.StartTime = &start
	}

	return resp
}
