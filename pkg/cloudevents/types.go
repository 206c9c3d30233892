package cloudevents

import (
	"time"
)

// Event types emitted by the production service
const (
	BatchCreated           = "mealprogram.production.batch.created"
	BatchUpdated           = "mealprogram.production.batch.updated"
	BatchStatusChanged     = "mealprogram.production.batch.status-changed"
	BatchCompleted         = "mealprogram.production.batch.completed"
	BatchCancelled         = "mealprogram.production.batch.cancelled"
	QualityCheckRecorded   = "mealprogram.production.quality-check.recorded"
	StockConsumed          = "mealprogram.production.stock.consumed"
	ReconciliationDeferred = "mealprogram.production.reconciliation.deferred"
)

// Event sources
const (
	SourceProduction = "/meal-program/production-service"
)

// Extension attribute names
const (
	ExtCorrelationID = "mpcorrelationid"
	ExtBatchNumber   = "mpbatchnumber"
	ExtActor         = "mpactor"
)

// CloudEvent is a CloudEvents v1.0 structured-mode envelope
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"mpcorrelationid,omitempty"`
	BatchNumber   string `json:"mpbatchnumber,omitempty"`
	Actor         string `json:"mpactor,omitempty"`

	// W3C trace context
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}
