// Package api contains shared JSON request/response structs.
// These mirror the marketplace backend's REST contract and are shared between
// the CLI, the console and the controllers.
package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// User types accepted by POST /login.
const (
	UserTypeClient   = "client"
	UserTypeProvider = "provider"
)

// Request statuses as reported by the backend.
// Only StatusBidding gates client behaviour; everything else is rendered verbatim.
const (
	StatusOpen      = "OPEN"
	StatusBidding   = "BIDDING"
	StatusAssigned  = "ASSIGNED"
	StatusScheduled = "SCHEDULED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusDone      = "DONE"
	StatusFailed    = "FAILED"
)

// LoginRequest is the request body for POST /login.
type LoginRequest struct {
	ID       int64  `json:"id"`
	UserType string `json:"user_type"`
}

// LoginResponse acknowledges a login. Exactly one of the ids is set.
type LoginResponse struct {
	Message    string `json:"message"`
	ClientID   *int64 `json:"client_id,omitempty"`
	ProviderID *int64 `json:"provider_id,omitempty"`
}

// Specs are the hardware figures shared by requests and provider uploads.
type Specs struct {
	Cores      int     `json:"cores"`
	ClockSpeed float64 `json:"clock_speed"` // GHz
	Memory     int     `json:"memory"`      // MB
}

// DefaultClientSpecs are the requirements pre-filled for a new request.
var DefaultClientSpecs = Specs{Cores: 4, ClockSpeed: 2.5, Memory: 4096}

// DefaultProviderSpecs are the hardware figures pre-filled for a provider upload.
var DefaultProviderSpecs = Specs{Cores: 8, ClockSpeed: 3.0, Memory: 8192}

// SubmitRequest is the request body for POST /clients/{id}/requests.
type SubmitRequest struct {
	Specs
	CodeText string `json:"code_text"`
}

// SubmitResponse is the response body after submitting a request.
type SubmitResponse struct {
	Message   string `json:"message,omitempty"`
	RequestID int64  `json:"request_id"`
	Status    string `json:"status,omitempty"`
}

// Request is a client-submitted unit of work.
type Request struct {
	ID           int64   `json:"id"`
	ClientID     int64   `json:"client_id,omitempty"`
	Cores        int     `json:"cores"`
	ClockSpeed   float64 `json:"clock_speed"`
	Memory       int     `json:"memory"`
	CodeText     string  `json:"code_text,omitempty"`
	Status       string  `json:"status"`
	ResultOutput *string `json:"result_output,omitempty"`
}

// Job is the provider-side view of an open Request.
type Job struct {
	RequestID  int64   `json:"request_id"`
	ClientID   int64   `json:"client_id"`
	Cores      int     `json:"cores"`
	ClockSpeed float64 `json:"clock_speed"`
	Memory     int     `json:"memory"`
}

// Bid is a provider's priced offer on a Request.
type Bid struct {
	ID         int64           `json:"id"`
	RequestID  int64           `json:"request_id"`
	ProviderID int64           `json:"provider_id"`
	Price      decimal.Decimal `json:"price"`
	Accepted   bool            `json:"accepted"`
	Status     string          `json:"status,omitempty"`
}

// PlaceBidRequest is the request body for POST /providers/{id}/requests/{rid}/bids.
// Price is sent as a JSON number.
type PlaceBidRequest struct {
	Price json.Number `json:"price"`
}

// PlaceBidResponse acknowledges a bid.
type PlaceBidResponse struct {
	Message string `json:"message"`
	BidID   int64  `json:"bid_id"`
}

// CurrentJob is the snapshot of the request a busy provider is executing.
type CurrentJob struct {
	RequestID  int64   `json:"request_id"`
	ClientID   int64   `json:"client_id"`
	Cores      int     `json:"cores"`
	ClockSpeed float64 `json:"clock_speed"`
	Memory     int     `json:"memory"`
	CodeText   string  `json:"code_text,omitempty"`
}

// ProviderStatus is the response body for GET /providers/{id}/status.
type ProviderStatus struct {
	ProviderID int64       `json:"provider_id,omitempty"`
	Available  bool        `json:"available"`
	CurrentJob *CurrentJob `json:"current_job"`
}

// Ack is the generic acknowledgement returned by mutating endpoints.
type Ack struct {
	Message string `json:"message"`
}

// ErrorResponse is the error body some backends return alongside 4xx codes.
type ErrorResponse struct {
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}
