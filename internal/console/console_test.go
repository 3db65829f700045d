package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"hpcmarket/internal/availability"
	"hpcmarket/internal/bidding"
	"hpcmarket/internal/market"
	"hpcmarket/internal/poller"
	"hpcmarket/internal/session"
	"hpcmarket/internal/testutil"
	"hpcmarket/internal/transport"
	"hpcmarket/pkg/api"

	"github.com/shopspring/decimal"
)

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newClientConsole(t *testing.T, b *testutil.Backend, out io.Writer) (*Console, *session.State) {
	t.Helper()
	client := market.New(transport.New(b.URL()))
	state := session.New(session.RoleClient, client)
	syn := poller.New(state, poller.WithInterval(20*time.Millisecond))
	c := New(state, syn, strings.NewReader(""), out, WithBidding(bidding.New(state, client)))
	return c, state
}

func newProviderConsole(t *testing.T, b *testutil.Backend, in io.Reader, out io.Writer) (*Console, *session.State) {
	t.Helper()
	client := market.New(transport.New(b.URL()))
	state := session.New(session.RoleProvider, client)
	syn := poller.New(state, poller.WithInterval(20*time.Millisecond))
	c := New(state, syn, in, out, WithAvailability(availability.New(state, client)))
	return c, state
}

func TestClientConsole_SubmitAndAccept(t *testing.T) {
	b := testutil.NewBackend(t)
	out := &syncBuffer{}
	c, state := newClientConsole(t, b, out)
	ctx := context.Background()
	defer c.syn.Stop()

	c.Exec(ctx, "login 1")
	if state.Token().View != session.ViewSubmit {
		t.Fatalf("expected submit view, got %s", state.Token().View)
	}
	c.Exec(ctx, "specs 2 2.0 1024")
	c.Exec(ctx, "code int main(){ return 0; }")
	if got := state.Snapshot().Data.Specs; got.Cores != 2 || got.Memory != 1024 {
		t.Fatalf("unexpected specs %+v", got)
	}

	c.Exec(ctx, "submit")
	token := state.Token()
	if token.View != session.ViewBids || token.Scope == 0 {
		t.Fatalf("expected bids view, got %+v", token)
	}
	rid := token.Scope
	if r, _ := b.Request(rid); r.CodeText != "int main(){ return 0; }" || r.Cores != 2 {
		t.Errorf("unexpected stored request %+v", r)
	}

	b.AddBid(api.Bid{ID: 7, RequestID: rid, ProviderID: 3, Price: decimal.RequireFromString("10.50")})
	c.Sync(ctx)
	waitFor(t, "bids to be polled", func() bool {
		return len(state.Snapshot().Data.Bids) == 1 && state.Snapshot().Data.Current != nil
	})

	c.Render()
	if !strings.Contains(out.String(), "$10.50") {
		t.Errorf("bid price not rendered:\n%s", out.String())
	}

	c.Exec(ctx, "accept 7")
	if state.Token().View != session.ViewStatus {
		t.Fatalf("expected status view after accept, got %s", state.Token().View)
	}
	c.Sync(ctx)
	waitFor(t, "accept to be confirmed", func() bool {
		d := state.Snapshot().Data
		return d.Pending == nil && len(d.Requests) == 1
	})
	if r := state.Snapshot().Data.Requests[0]; r.Status != api.StatusScheduled {
		t.Errorf("expected SCHEDULED, got %s", r.Status)
	}
}

func TestClientConsole_AcceptOutsideBidsView(t *testing.T) {
	b := testutil.NewBackend(t)
	out := &syncBuffer{}
	c, _ := newClientConsole(t, b, out)
	ctx := context.Background()

	c.Exec(ctx, "login 1")
	c.Exec(ctx, "accept 1")
	if !strings.Contains(out.String(), "accept is available in the bids and all views") {
		t.Errorf("expected accept error, got:\n%s", out.String())
	}
}

func TestClientConsole_AllBidsDrillDown(t *testing.T) {
	b := testutil.NewBackend(t)
	out := &syncBuffer{}
	c, state := newClientConsole(t, b, out)
	ctx := context.Background()
	defer c.syn.Stop()

	rid := b.AddRequest(api.Request{ClientID: 1})
	b.AddBid(api.Bid{RequestID: rid, ProviderID: 3, Price: decimal.NewFromInt(4)})

	c.Exec(ctx, "login 1")
	c.Exec(ctx, "all")
	c.Sync(ctx)
	waitFor(t, "requests to load", func() bool { return len(state.Snapshot().Data.AllRequests) == 1 })

	c.Exec(ctx, "select 1")
	waitFor(t, "bids to load", func() bool { return len(state.Snapshot().Data.SelectedBids) == 1 })

	c.Exec(ctx, "accept 1")
	if state.Token().View != session.ViewStatus {
		t.Errorf("expected status view after accept, got %s", state.Token().View)
	}
	if len(b.AcceptedBids(rid)) != 1 {
		t.Error("expected the bid to be accepted")
	}
}

func TestClientConsole_UnknownCommand(t *testing.T) {
	b := testutil.NewBackend(t)
	out := &syncBuffer{}
	c, _ := newClientConsole(t, b, out)

	if quit := c.Exec(context.Background(), "frobnicate"); quit {
		t.Error("unknown command must not quit")
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("expected unknown command error, got:\n%s", out.String())
	}
	if !c.Exec(context.Background(), "quit") {
		t.Error("quit must exit")
	}
}

func TestProviderConsole_Run(t *testing.T) {
	b := testutil.NewBackend(t)
	b.AddProvider(3, api.DefaultProviderSpecs)
	b.AddRequest(api.Request{ClientID: 1, Cores: 2, ClockSpeed: 2.0, Memory: 1024})

	in, inW := io.Pipe()
	out := &syncBuffer{}
	c, state := newProviderConsole(t, b, in, out)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	io.WriteString(inW, "login 3\n")
	waitFor(t, "jobs to render", func() bool { return strings.Contains(out.String(), "#1") })

	io.WriteString(inW, "bid 1 12.25\n")
	waitFor(t, "bid banner", func() bool { return strings.Contains(out.String(), availability.MsgBidPlaced) })

	io.WriteString(inW, "logout\n")
	waitFor(t, "logout", func() bool { return !state.Snapshot().LoggedIn })

	io.WriteString(inW, "quit\n")
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("console did not exit")
	}
	inW.Close()

	if b.Calls("POST /providers/3/logout") != 1 {
		t.Error("expected provider logout notification")
	}
}

func TestProviderConsole_CurrentJobSuppressesBidding(t *testing.T) {
	b := testutil.NewBackend(t)
	b.AddProvider(3, api.DefaultProviderSpecs)
	rid := b.AddRequest(api.Request{ID: 42, ClientID: 1, Cores: 4, ClockSpeed: 2.5, Memory: 4096})
	bid := b.AddBid(api.Bid{RequestID: rid, ProviderID: 3})
	if err := market.New(transport.New(b.URL())).AcceptBid(context.Background(), 1, rid, bid); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	out := &syncBuffer{}
	c, state := newProviderConsole(t, b, strings.NewReader(""), out)
	ctx := context.Background()
	defer c.syn.Stop()

	c.Exec(ctx, "login 3")
	c.Sync(ctx)
	waitFor(t, "status to load", func() bool { return state.Snapshot().Data.Status != nil })

	c.Render()
	if !strings.Contains(out.String(), "Current Job") {
		t.Errorf("expected current job card, got:\n%s", out.String())
	}

	c.Exec(ctx, "bid 42 5")
	if !strings.Contains(out.String(), "bidding is not available") {
		t.Errorf("expected suppressed bid, got:\n%s", out.String())
	}
	if n := b.Calls("GET /providers/3/requests"); n != 0 {
		t.Errorf("jobs must not be fetched while busy, got %d", n)
	}
}

func TestParseSpecs(t *testing.T) {
	specs, err := parseSpecs([]string{"8", "3.0", "8192"})
	if err != nil {
		t.Fatalf("parseSpecs failed: %v", err)
	}
	if specs != api.DefaultProviderSpecs {
		t.Errorf("unexpected specs %+v", specs)
	}

	for _, args := range [][]string{{"8", "3.0"}, {"0", "3.0", "1"}, {"8", "x", "1"}, {"8", "3.0", "-1"}} {
		if _, err := parseSpecs(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}
