package models

import audit "corridor/pkg/platform/audit"

type IngestResponse struct {
	Message string       `json:"message"`
	Log     audit.Record `json:"log"`
}

type ListResponse struct {
	Count int            `json:"count"`
	Logs  []audit.Record `json:"logs"`
}

type UserLogsResponse struct {
	UserID string         `json:"userID"`
	Count  int            `json:"count"`
	Logs   []audit.Record `json:"logs"`
}

type RequestLogsResponse struct {
	RequestID string         `json:"requestId"`
	Count     int            `json:"count"`
	Logs      []audit.Record `json:"logs"`
}

type ErrorsResponse struct {
	Count  int            `json:"count"`
	Errors []audit.Record `json:"errors"`
}
