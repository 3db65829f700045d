// Package market is the typed client for the marketplace backend REST API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"hpcmarket/internal/transport"
	"hpcmarket/pkg/api"

	"github.com/shopspring/decimal"
)

// Client issues the marketplace operations through a transport.Sender.
type Client struct {
	sender transport.Sender
}

// New creates a client on top of sender.
func New(sender transport.Sender) *Client {
	return &Client{sender: sender}
}

// Login sends POST /login to register the actor with the backend.
func (c *Client) Login(ctx context.Context, id int64, userType string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	if err := c.sender.Send(ctx, http.MethodPost, "/login", api.LoginRequest{ID: id, UserType: userType}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitRequest sends POST /clients/{id}/requests.
func (c *Client) SubmitRequest(ctx context.Context, clientID int64, specs api.Specs, codeText string) (*api.SubmitResponse, error) {
	var resp api.SubmitResponse
	body := api.SubmitRequest{Specs: specs, CodeText: codeText}
	if err := c.sender.Send(ctx, http.MethodPost, fmt.Sprintf("/clients/%d/requests", clientID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRequests sends GET /clients/{id}/requests.
func (c *Client) ListRequests(ctx context.Context, clientID int64) ([]api.Request, error) {
	var resp []api.Request
	if err := c.sender.Send(ctx, http.MethodGet, fmt.Sprintf("/clients/%d/requests", clientID), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListBids sends GET /clients/{id}/requests/{rid}/bids.
// The backend omits request_id on some versions, so it is filled in here.
func (c *Client) ListBids(ctx context.Context, clientID, requestID int64) ([]api.Bid, error) {
	var resp []api.Bid
	path := fmt.Sprintf("/clients/%d/requests/%d/bids", clientID, requestID)
	if err := c.sender.Send(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp {
		if resp[i].RequestID == 0 {
			resp[i].RequestID = requestID
		}
	}
	return resp, nil
}

// AcceptBid sends POST /clients/{id}/requests/{rid}/bids/{bid}/accept.
// The backend is the sole enforcer of the single-accept rule.
func (c *Client) AcceptBid(ctx context.Context, clientID, requestID, bidID int64) error {
	path := fmt.Sprintf("/clients/%d/requests/%d/bids/%d/accept", clientID, requestID, bidID)
	return c.sender.Send(ctx, http.MethodPost, path, struct{}{}, &api.Ack{})
}

// ProviderStatus sends GET /providers/{id}/status.
func (c *Client) ProviderStatus(ctx context.Context, providerID int64) (*api.ProviderStatus, error) {
	var resp api.ProviderStatus
	if err := c.sender.Send(ctx, http.MethodGet, fmt.Sprintf("/providers/%d/status", providerID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// OpenJobs sends GET /providers/{id}/requests.
func (c *Client) OpenJobs(ctx context.Context, providerID int64) ([]api.Job, error) {
	var resp []api.Job
	if err := c.sender.Send(ctx, http.MethodGet, fmt.Sprintf("/providers/%d/requests", providerID), nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PlaceBid sends POST /providers/{id}/requests/{rid}/bids.
func (c *Client) PlaceBid(ctx context.Context, providerID, requestID int64, price decimal.Decimal) (*api.PlaceBidResponse, error) {
	var resp api.PlaceBidResponse
	path := fmt.Sprintf("/providers/%d/requests/%d/bids", providerID, requestID)
	body := api.PlaceBidRequest{Price: decimalNumber(price)}
	if err := c.sender.Send(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadSpecs sends POST /providers/{id}/specs.
func (c *Client) UploadSpecs(ctx context.Context, providerID int64, specs api.Specs) error {
	return c.sender.Send(ctx, http.MethodPost, fmt.Sprintf("/providers/%d/specs", providerID), specs, &api.Ack{})
}

// ProviderLogout sends POST /providers/{id}/logout, marking the provider unavailable.
func (c *Client) ProviderLogout(ctx context.Context, providerID int64) error {
	return c.sender.Send(ctx, http.MethodPost, fmt.Sprintf("/providers/%d/logout", providerID), nil, &api.Ack{})
}

func decimalNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
