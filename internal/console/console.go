// Package console is the interactive terminal front end. The client and the
// provider consoles are thin views over the same session state: commands
// mutate the state through the controllers, and every state change is
// rendered from a snapshot.
//
// The loop is single-threaded. User input and change notifications are
// serialized through one select, and the synchronizer is restarted whenever
// the session token moves.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"hpcmarket/internal/availability"
	"hpcmarket/internal/bidding"
	"hpcmarket/internal/logger"
	"hpcmarket/internal/poller"
	"hpcmarket/internal/session"
	"hpcmarket/pkg/api"
)

// Console runs the interactive loop for one role.
type Console struct {
	state    *session.State
	syn      *poller.Synchronizer
	client   *bidding.Controller
	provider *availability.Controller
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger

	active session.Token
}

// Option configures a Console.
type Option func(*Console)

// WithBidding enables the client commands.
func WithBidding(c *bidding.Controller) Option {
	return func(con *Console) { con.client = c }
}

// WithAvailability enables the provider commands.
func WithAvailability(c *availability.Controller) Option {
	return func(con *Console) { con.provider = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(con *Console) {
		if l != nil {
			con.logger = l
		}
	}
}

// New creates a console reading commands from in and rendering to out.
func New(state *session.State, syn *poller.Synchronizer, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		state:  state,
		syn:    syn,
		in:     in,
		out:    out,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes commands until the input ends, a quit command is read or ctx
// is cancelled. The synchronizer is stopped on return.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.syn.Stop()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.Render()
	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.Exec(ctx, line); quit {
				return nil
			}
			c.Sync(ctx)
			c.prompt()
		case <-c.state.Changes():
			c.Sync(ctx)
			c.Render()
			c.prompt()
		}
	}
}

// Sync starts the synchronizer of the active view if the session token moved
// since the last call.
func (c *Console) Sync(ctx context.Context) {
	token := c.state.Token()
	if token == c.active {
		return
	}
	c.active = token
	c.syn.Stop()

	switch token.View {
	case session.ViewBids:
		if c.client != nil && token.Scope != 0 {
			c.syn.Start(ctx, token, c.client.BidsTick(token.Scope))
		}
	case session.ViewStatus:
		if c.client != nil {
			c.syn.Start(ctx, token, c.client.StatusTick())
		}
	case session.ViewAllBids:
		if c.client != nil {
			go func() {
				if err := c.client.ListAllRequestsWithBids(ctx); err != nil {
					c.logger.Debug("list requests failed", "error", err)
				}
			}()
		}
	case session.ViewJobs:
		if c.provider != nil {
			c.syn.Start(ctx, token, c.provider.Tick(token.ActorID))
		}
	}
	c.logger.Debug("view activated", "view", string(token.View), "scope", token.Scope)
}

// Render prints the current state.
func (c *Console) Render() {
	Render(c.out, c.state.Snapshot())
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}

// Exec runs one command line. It reports true when the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		c.help()
	case "login":
		err = c.login(ctx, args)
	case "logout":
		err = c.state.Logout(ctx)
	case "refresh":
		c.active = session.Token{}
	default:
		if c.client != nil {
			err = c.clientCommand(ctx, cmd, args, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
		} else {
			err = c.providerCommand(ctx, cmd, args)
		}
	}

	if err != nil {
		fmt.Fprintf(c.out, "%sError: %v%s\n", colorRed, err, colorReset)
	}
	return false
}

var errUnknownCommand = errors.New("unknown command, type 'help'")

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: login <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return session.ErrInvalidActor
	}
	return c.state.Login(ctx, id)
}

func (c *Console) clientCommand(ctx context.Context, cmd string, args []string, rest string) error {
	switch cmd {
	case "submit":
		if c.state.Token().View != session.ViewSubmit {
			if err := c.state.Navigate(session.ViewSubmit, 0, nil); err != nil || rest == "" {
				return err
			}
		}
		if rest != "" {
			c.state.Update(func(d *session.Data) { d.CodeText = rest })
		}
		d := c.state.Snapshot().Data
		_, err := c.client.SubmitRequest(ctx, d.Specs, d.CodeText)
		return err

	case "code":
		if c.state.Token().View != session.ViewSubmit {
			return errors.New("code can only be set in the submit view")
		}
		c.state.Update(func(d *session.Data) { d.CodeText = rest })
		return nil

	case "specs":
		if c.state.Token().View != session.ViewSubmit {
			return errors.New("specs can only be set in the submit view")
		}
		specs, err := parseSpecs(args)
		if err != nil {
			return err
		}
		c.state.Update(func(d *session.Data) { d.Specs = specs })
		return nil

	case "bids":
		scope := c.state.Token().Scope
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid request id %q", args[0])
			}
			scope = id
		}
		if scope == 0 {
			return errors.New("usage: bids <request>")
		}
		return c.state.Navigate(session.ViewBids, scope, nil)

	case "status":
		return c.state.Navigate(session.ViewStatus, 0, nil)

	case "all", "all_bids":
		return c.state.Navigate(session.ViewAllBids, 0, nil)

	case "select":
		if c.state.Token().View != session.ViewAllBids {
			return errors.New("select is only available in the all view")
		}
		id, err := parseID(args, "usage: select <request>")
		if err != nil {
			return err
		}
		go func() {
			if err := c.client.SelectRequest(ctx, id); err != nil {
				c.logger.Debug("select request failed", "request_id", id, "error", err)
			}
		}()
		return nil

	case "accept":
		bidID, err := parseID(args, "usage: accept <bid>")
		if err != nil {
			return err
		}
		request, bid, err := c.acceptTarget(bidID)
		if err != nil {
			return err
		}
		return c.client.AcceptBid(ctx, request, bid)
	}
	return errUnknownCommand
}

// acceptTarget finds the bid and its request among the bids shown by the
// active view.
func (c *Console) acceptTarget(bidID int64) (api.Request, api.Bid, error) {
	snap := c.state.Snapshot()
	d := snap.Data

	var (
		request *api.Request
		bids    []api.Bid
	)
	switch snap.Token.View {
	case session.ViewBids:
		request, bids = d.Current, d.Bids
	case session.ViewAllBids:
		for i := range d.AllRequests {
			if d.AllRequests[i].ID == d.SelectedRequest {
				request = &d.AllRequests[i]
			}
		}
		bids = d.SelectedBids
	default:
		return api.Request{}, api.Bid{}, errors.New("accept is available in the bids and all views")
	}

	if request == nil {
		return api.Request{}, api.Bid{}, errors.New("request not loaded yet")
	}
	for _, b := range bids {
		if b.ID == bidID {
			return *request, b, nil
		}
	}
	return api.Request{}, api.Bid{}, fmt.Errorf("bid #%d is not shown", bidID)
}

func (c *Console) providerCommand(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "jobs":
		return c.state.Navigate(session.ViewJobs, 0, nil)

	case "specs":
		if len(args) == 0 {
			return c.state.Navigate(session.ViewSpecs, 0, nil)
		}
		specs, err := parseSpecs(args)
		if err != nil {
			return err
		}
		return c.provider.UploadSpecs(ctx, specs)

	case "bid":
		if len(args) != 2 {
			return errors.New("usage: bid <job> <price>")
		}
		id, err := parseID(args[:1], "usage: bid <job> <price>")
		if err != nil {
			return err
		}
		return c.provider.PlaceBid(ctx, id, args[1])
	}
	return errUnknownCommand
}

func (c *Console) help() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  login <id>                      log in")
	fmt.Fprintln(c.out, "  logout                          log out")
	if c.client != nil {
		fmt.Fprintln(c.out, "  specs <cores> <ghz> <memory>    set request specs (submit view)")
		fmt.Fprintln(c.out, "  code <text>                     set code (submit view)")
		fmt.Fprintln(c.out, "  submit [code]                   submit the request")
		fmt.Fprintln(c.out, "  bids [request]                  watch the bids of a request")
		fmt.Fprintln(c.out, "  status                          watch your requests")
		fmt.Fprintln(c.out, "  all                             list requests and drill into bids")
		fmt.Fprintln(c.out, "  select <request>                show the bids of a request (all view)")
		fmt.Fprintln(c.out, "  accept <bid>                    accept a bid (bids and all views)")
	} else {
		fmt.Fprintln(c.out, "  jobs                            watch open jobs")
		fmt.Fprintln(c.out, "  bid <job> <price>               place a bid")
		fmt.Fprintln(c.out, "  specs [<cores> <ghz> <memory>]  show or upload specs")
	}
	fmt.Fprintln(c.out, "  refresh                         restart polling of the view")
	fmt.Fprintln(c.out, "  quit                            exit")
}

func parseID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New(usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func parseSpecs(args []string) (api.Specs, error) {
	if len(args) != 3 {
		return api.Specs{}, errors.New("usage: specs <cores> <ghz> <memory>")
	}
	cores, err := strconv.Atoi(args[0])
	if err != nil || cores <= 0 {
		return api.Specs{}, fmt.Errorf("invalid cores %q", args[0])
	}
	ghz, err := strconv.ParseFloat(args[1], 64)
	if err != nil || ghz <= 0 {
		return api.Specs{}, fmt.Errorf("invalid clock speed %q", args[1])
	}
	mem, err := strconv.Atoi(args[2])
	if err != nil || mem <= 0 {
		return api.Specs{}, fmt.Errorf("invalid memory %q", args[2])
	}
	return api.Specs{Cores: cores, ClockSpeed: ghz, Memory: mem}, nil
}
