package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// DeliveryFailure describes a petition that could not be handed to the analysis workflow.
type DeliveryFailure struct {
	CaseID     string
	UserID     string
	Endpoint   string // webhook host, never the full URL
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming delivery failure alerts.
type Sink interface {
	SendDeliveryFailure(ctx context.Context, payload DeliveryFailure) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload DeliveryFailure) error

// SendDeliveryFailure implements the Sink interface.
func (f SinkFunc) SendDeliveryFailure(ctx context.Context, payload DeliveryFailure) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
