// Package testutil provides an in-memory marketplace backend for tests.
//
// Backend implements the REST contract the client consumes, including the
// authoritative single-accept rule, on top of httptest.Server.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"hpcmarket/pkg/api"

	"github.com/shopspring/decimal"
)

type provider struct {
	specs     api.Specs
	available bool
}

// Backend is a fake marketplace server.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	clients   map[int64]bool
	providers map[int64]*provider
	requests  map[int64]*api.Request
	bids      map[int64]*api.Bid
	nextReq   int64
	nextBid   int64
	calls     map[string]int
	failures  map[string]int
	gates     map[string]chan struct{}
}

// NewBackend starts a backend and registers its shutdown with t.Cleanup.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		clients:   make(map[int64]bool),
		providers: make(map[int64]*provider),
		requests:  make(map[int64]*api.Request),
		bids:      make(map[int64]*api.Bid),
		nextReq:   1,
		nextBid:   1,
		calls:     make(map[string]int),
		failures:  make(map[string]int),
		gates:     make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", b.login)
	mux.HandleFunc("POST /clients/{cid}/requests", b.submit)
	mux.HandleFunc("GET /clients/{cid}/requests", b.listRequests)
	mux.HandleFunc("GET /clients/{cid}/requests/{rid}/bids", b.listBids)
	mux.HandleFunc("POST /clients/{cid}/requests/{rid}/bids/{bid}/accept", b.accept)
	mux.HandleFunc("GET /providers/{pid}/status", b.status)
	mux.HandleFunc("GET /providers/{pid}/requests", b.openJobs)
	mux.HandleFunc("POST /providers/{pid}/requests/{rid}/bids", b.placeBid)
	mux.HandleFunc("POST /providers/{pid}/specs", b.specs)
	mux.HandleFunc("POST /providers/{pid}/logout", b.providerLogout)

	b.Server = httptest.NewServer(b.intercept(mux))
	t.Cleanup(func() {
		b.mu.Lock()
		for key, gate := range b.gates {
			close(gate)
			delete(b.gates, key)
		}
		b.mu.Unlock()
		b.Server.Close()
	})
	return b
}

// URL returns the base URL of the backend.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Calls returns how many times "METHOD /path" was requested.
func (b *Backend) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

// FailNext makes the next n requests to "METHOD /path" answer with 500.
func (b *Backend) FailNext(key string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[key] = n
}

// Hold blocks requests to "METHOD /path" until the returned release func is called.
func (b *Backend) Hold(key string) (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gates[key] = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			owned := b.gates[key] == gate
			if owned {
				delete(b.gates, key)
			}
			b.mu.Unlock()
			if owned {
				close(gate)
			}
		})
	}
}

// AddClient registers a client without a login call.
func (b *Backend) AddClient(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[id] = true
}

// AddProvider registers an available provider with the given specs.
func (b *Backend) AddProvider(id int64, specs api.Specs) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[id] = &provider{specs: specs, available: true}
}

// SetAvailable flips a provider's availability.
func (b *Backend) SetAvailable(id int64, available bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.providers[id]; ok {
		p.available = available
	}
}

// AddRequest stores a request directly and returns its id.
func (b *Backend) AddRequest(r api.Request) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.ID == 0 {
		r.ID = b.nextReq
	}
	if r.ID >= b.nextReq {
		b.nextReq = r.ID + 1
	}
	if r.Status == "" {
		r.Status = api.StatusOpen
	}
	b.clients[r.ClientID] = true
	b.requests[r.ID] = &r
	return r.ID
}

// AddBid stores a bid directly, moving its request to BIDDING.
func (b *Backend) AddBid(bid api.Bid) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bid.ID == 0 {
		bid.ID = b.nextBid
	}
	if bid.ID >= b.nextBid {
		b.nextBid = bid.ID + 1
	}
	b.bids[bid.ID] = &bid
	if r, ok := b.requests[bid.RequestID]; ok && r.Status == api.StatusOpen {
		r.Status = api.StatusBidding
	}
	return bid.ID
}

// Request returns a copy of a stored request.
func (b *Backend) Request(id int64) (api.Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.requests[id]
	if !ok {
		return api.Request{}, false
	}
	return *r, true
}

// AcceptedBids returns the accepted bids of a request.
func (b *Backend) AcceptedBids(requestID int64) []api.Bid {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []api.Bid
	for _, bid := range b.bids {
		if bid.RequestID == requestID && bid.Accepted {
			out = append(out, *bid)
		}
	}
	return out
}

func (b *Backend) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.calls[key]++
		gate := b.gates[key]
		fail := b.failures[key] > 0
		if fail {
			b.failures[key]--
		}
		b.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch req.UserType {
	case api.UserTypeClient:
		b.clients[req.ID] = true
		writeJSON(w, http.StatusOK, api.LoginResponse{Message: "Client logged in", ClientID: &req.ID})
	case api.UserTypeProvider:
		if _, ok := b.providers[req.ID]; !ok {
			b.providers[req.ID] = &provider{available: true}
		}
		writeJSON(w, http.StatusOK, api.LoginResponse{Message: "Provider logged in", ProviderID: &req.ID})
	default:
		writeError(w, http.StatusBadRequest, "invalid user_type")
	}
}

func (b *Backend) submit(w http.ResponseWriter, r *http.Request) {
	cid := pathID(r, "cid")
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.clients[cid] {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	id := b.nextReq
	b.nextReq++
	b.requests[id] = &api.Request{
		ID:         id,
		ClientID:   cid,
		Cores:      req.Cores,
		ClockSpeed: req.ClockSpeed,
		Memory:     req.Memory,
		CodeText:   req.CodeText,
		Status:     api.StatusOpen,
	}
	writeJSON(w, http.StatusCreated, api.SubmitResponse{Message: "Code request created", RequestID: id, Status: api.StatusOpen})
}

func (b *Backend) listRequests(w http.ResponseWriter, r *http.Request) {
	cid := pathID(r, "cid")

	b.mu.Lock()
	defer b.mu.Unlock()
	out := []api.Request{}
	for _, req := range b.requests {
		if req.ClientID == cid {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listBids(w http.ResponseWriter, r *http.Request) {
	rid := pathID(r, "rid")

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.requests[rid]; !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	out := []api.Bid{}
	for _, bid := range b.bids {
		if bid.RequestID == rid {
			out = append(out, *bid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) accept(w http.ResponseWriter, r *http.Request) {
	rid := pathID(r, "rid")
	bidID := pathID(r, "bid")

	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[rid]
	if !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	bid, ok := b.bids[bidID]
	if !ok || bid.RequestID != rid {
		writeError(w, http.StatusNotFound, "bid not found")
		return
	}
	if req.Status != api.StatusBidding {
		writeError(w, http.StatusConflict, "request is not open for acceptance")
		return
	}
	bid.Accepted = true
	req.Status = api.StatusScheduled
	if p, ok := b.providers[bid.ProviderID]; ok {
		p.available = false
	}
	writeJSON(w, http.StatusOK, api.Ack{Message: "Bid accepted and job scheduled"})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	pid := pathID(r, "pid")

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.providers[pid]
	if !ok {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}

	var current *api.CurrentJob
	var latest int64
	for _, bid := range b.bids {
		if bid.ProviderID != pid || !bid.Accepted {
			continue
		}
		req := b.requests[bid.RequestID]
		if req == nil || req.Status != api.StatusScheduled || req.ID < latest {
			continue
		}
		latest = req.ID
		current = &api.CurrentJob{
			RequestID:  req.ID,
			ClientID:   req.ClientID,
			Cores:      req.Cores,
			ClockSpeed: req.ClockSpeed,
			Memory:     req.Memory,
			CodeText:   req.CodeText,
		}
	}
	writeJSON(w, http.StatusOK, api.ProviderStatus{ProviderID: pid, Available: p.available, CurrentJob: current})
}

func (b *Backend) openJobs(w http.ResponseWriter, r *http.Request) {
	pid := pathID(r, "pid")

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.providers[pid]
	if !ok {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	if !p.available {
		writeError(w, http.StatusBadRequest, "Provider is currently unavailable")
		return
	}
	out := []api.Job{}
	for _, req := range b.requests {
		if req.Status != api.StatusOpen && req.Status != api.StatusBidding {
			continue
		}
		if req.Cores > p.specs.Cores || req.ClockSpeed > p.specs.ClockSpeed || req.Memory > p.specs.Memory {
			continue
		}
		out = append(out, api.Job{
			RequestID:  req.ID,
			ClientID:   req.ClientID,
			Cores:      req.Cores,
			ClockSpeed: req.ClockSpeed,
			Memory:     req.Memory,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) placeBid(w http.ResponseWriter, r *http.Request) {
	pid := pathID(r, "pid")
	rid := pathID(r, "rid")

	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.providers[pid]
	if !ok {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	if !p.available {
		writeError(w, http.StatusBadRequest, "Provider is currently unavailable")
		return
	}
	req, ok := b.requests[rid]
	if !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if req.Status != api.StatusOpen && req.Status != api.StatusBidding {
		writeError(w, http.StatusBadRequest, "Request not open for bidding")
		return
	}
	id := b.nextBid
	b.nextBid++
	b.bids[id] = &api.Bid{ID: id, RequestID: rid, ProviderID: pid, Price: body.Price}
	req.Status = api.StatusBidding
	writeJSON(w, http.StatusOK, api.PlaceBidResponse{Message: "Bid submitted", BidID: id})
}

func (b *Backend) specs(w http.ResponseWriter, r *http.Request) {
	pid := pathID(r, "pid")
	var specs api.Specs
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.providers[pid]
	if !ok {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	p.specs = specs
	p.available = true
	writeJSON(w, http.StatusOK, api.Ack{Message: "Specs updated"})
}

func (b *Backend) providerLogout(w http.ResponseWriter, r *http.Request) {
	pid := pathID(r, "pid")

	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.providers[pid]
	if !ok {
		writeError(w, http.StatusNotFound, "provider not found")
		return
	}
	p.available = false
	writeJSON(w, http.StatusOK, api.Ack{Message: "Provider logged out and unavailable"})
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(r.PathValue(name)), 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message})
}
