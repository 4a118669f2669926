package api

import "time"

type DeliveryResponse struct {
	DeliveryID string `json:"delivery_id"`
	Event      string `json:"event"`
	Action     string `json:"action,omitempty"`
	Repository string `json:"repository,omitempty"`
	Sender     string `json:"sender,omitempty"`
	Status     string `json:"status"`
	RecordedAt string `json:"recorded_at"`
}

type TransitionResponse struct {
	ID         string `json:"id"`
	DeliveryID string `json:"delivery_id"`
	Seq        int    `json:"seq"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

type ListDeliveriesResponse struct {
	Deliveries []DeliveryResponse `json:"deliveries"`
}

type ListTransitionsResponse struct {
	Transitions []TransitionResponse `json:"transitions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
