package console

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"hpcmarket/internal/availability"
	"hpcmarket/internal/bidding"
	"hpcmarket/internal/session"
	"hpcmarket/internal/store"
	"hpcmarket/pkg/api"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case api.StatusCompleted, api.StatusDone:
		return colorGreen + "✓" + colorReset
	case api.StatusFailed:
		return colorRed + "✗" + colorReset
	case api.StatusRunning, api.StatusScheduled, api.StatusAssigned:
		return colorYellow + "⏳" + colorReset
	case api.StatusBidding, api.StatusOpen:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

// ColorizeStatus renders a request status with its icon.
func ColorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case api.StatusCompleted, api.StatusDone:
		return icon + " " + colorGreen + status + colorReset
	case api.StatusFailed:
		return icon + " " + colorRed + status + colorReset
	case api.StatusRunning, api.StatusScheduled, api.StatusAssigned:
		return icon + " " + colorYellow + status + colorReset
	case api.StatusBidding, api.StatusOpen:
		return icon + " " + colorCyan + status + colorReset
	default:
		return status
	}
}

// WriteBanner prints b, if any.
func WriteBanner(w io.Writer, b session.Banner) {
	switch b.Kind {
	case session.BannerInfo:
		fmt.Fprintf(w, "%s%s%s\n", colorGreen, b.Text, colorReset)
	case session.BannerError:
		fmt.Fprintf(w, "%s%s%s\n", colorRed, b.Text, colorReset)
	}
}

// WriteRequests prints requests as a table.
func WriteRequests(w io.Writer, requests []api.Request) {
	if len(requests) == 0 {
		fmt.Fprintln(w, "No requests found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "REQUEST\tSTATUS\tCORES\tCLOCK\tMEMORY")
	for _, r := range requests {
		fmt.Fprintf(tw, "#%d\t%s\t%d\t%.1f GHz\t%d MB\n", r.ID, r.Status, r.Cores, r.ClockSpeed, r.Memory)
	}
	tw.Flush()

	for _, r := range requests {
		if r.ResultOutput != nil && *r.ResultOutput != "" {
			fmt.Fprintf(w, "%sResult of #%d:%s\n%s\n", colorDim, r.ID, colorReset, strings.TrimRight(*r.ResultOutput, "\n"))
		}
	}
}

// WriteBids prints bids as a table. The accept hint is shown only when the
// owning request can still be accepted.
func WriteBids(w io.Writer, bids []api.Bid, acceptable bool) {
	if len(bids) == 0 {
		fmt.Fprintln(w, "No bids yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "BID\tPROVIDER\tPRICE\tACCEPTED")
	for _, b := range bids {
		accepted := "-"
		if b.Accepted {
			accepted = colorGreen + "yes" + colorReset
		}
		fmt.Fprintf(tw, "#%d\t%d\t$%s\t%s\n", b.ID, b.ProviderID, b.Price.StringFixed(2), accepted)
	}
	tw.Flush()
	if acceptable {
		fmt.Fprintf(w, "%sType 'accept <bid>' to accept a bid.%s\n", colorDim, colorReset)
	}
}

// WriteJobs prints open jobs as a table.
func WriteJobs(w io.Writer, jobs []api.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs available.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "JOB\tCLIENT\tCORES\tCLOCK\tMEMORY")
	for _, j := range jobs {
		fmt.Fprintf(tw, "#%d\t%d\t%d\t%.1f GHz\t%d MB\n", j.RequestID, j.ClientID, j.Cores, j.ClockSpeed, j.Memory)
	}
	tw.Flush()
	fmt.Fprintf(w, "%sType 'bid <job> <price>' to place a bid.%s\n", colorDim, colorReset)
}

// WriteCurrentJob prints the job the provider is busy with.
func WriteCurrentJob(w io.Writer, job *api.CurrentJob) {
	fmt.Fprintf(w, "%sCurrent Job%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "──────────────────────────────")
	fmt.Fprintf(w, "%sJob:%s         #%d\n", colorDim, colorReset, job.RequestID)
	fmt.Fprintf(w, "%sClient:%s      %d\n", colorDim, colorReset, job.ClientID)
	fmt.Fprintf(w, "%sCores:%s       %d\n", colorDim, colorReset, job.Cores)
	fmt.Fprintf(w, "%sClock Speed:%s %.1f GHz\n", colorDim, colorReset, job.ClockSpeed)
	fmt.Fprintf(w, "%sMemory:%s      %d MB\n", colorDim, colorReset, job.Memory)
	if job.CodeText != "" {
		fmt.Fprintf(w, "%sCode:%s        %d bytes\n", colorDim, colorReset, len(job.CodeText))
	}
}

// WriteProviderView prints the derived jobs view.
func WriteProviderView(w io.Writer, v availability.View) {
	switch v.Display {
	case availability.DisplayLoading:
		fmt.Fprintln(w, "Loading…")
	case availability.DisplayError:
		fmt.Fprintf(w, "%s%s%s\n", colorRed, v.Message, colorReset)
	case availability.DisplayOpenJobs:
		if v.Message != "" {
			fmt.Fprintf(w, "%s%s%s\n", colorRed, v.Message, colorReset)
			return
		}
		WriteJobs(w, v.Jobs)
	case availability.DisplayCurrentJob:
		WriteCurrentJob(w, v.Current)
	case availability.DisplayUnavailable:
		fmt.Fprintln(w, v.Message)
	}
}

// WriteSpecs prints a specs form.
func WriteSpecs(w io.Writer, s api.Specs) {
	fmt.Fprintf(w, "%sCores:%s       %d\n", colorDim, colorReset, s.Cores)
	fmt.Fprintf(w, "%sClock Speed:%s %.1f GHz\n", colorDim, colorReset, s.ClockSpeed)
	fmt.Fprintf(w, "%sMemory:%s      %d MB\n", colorDim, colorReset, s.Memory)
}

// WriteActions prints ledger entries as a table.
func WriteActions(w io.Writer, actions []store.Action) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "No actions recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tREQUEST\tBID\tPRICE\tOUTCOME\tDETAIL")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s %d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format(time.DateTime),
			a.Role, a.ActorID, a.Kind,
			optionalID(a.RequestID), optionalID(a.BidID), optionalPrice(a),
			a.Outcome, a.Detail)
	}
	tw.Flush()
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *id)
}

func optionalPrice(a store.Action) string {
	if !a.Price.Valid {
		return "-"
	}
	return "$" + a.Price.Decimal.StringFixed(2)
}

// Render prints the whole screen for snap.
func Render(w io.Writer, snap session.Snapshot) {
	header := "HPC Marketplace"
	if snap.LoggedIn {
		header = fmt.Sprintf("%s | %s %d | %s", header, snap.Token.Role, snap.Token.ActorID, snap.Token.View)
	}
	fmt.Fprintf(w, "\n%s%s%s\n", colorBold, header, colorReset)
	fmt.Fprintln(w, "──────────────────────────────")

	d := snap.Data
	WriteBanner(w, d.Banner)

	switch snap.Token.View {
	case session.ViewLogin:
		fmt.Fprintln(w, "Not logged in. Type 'login <id>'.")

	case session.ViewSubmit:
		fmt.Fprintf(w, "%sSubmit Code Request%s\n", colorBold, colorReset)
		WriteSpecs(w, d.Specs)
		fmt.Fprintf(w, "%sCode:%s        %d bytes\n", colorDim, colorReset, len(d.CodeText))
		fmt.Fprintf(w, "%sSet with 'specs <cores> <ghz> <memory>' and 'code <text>', then 'submit'.%s\n", colorDim, colorReset)

	case session.ViewBids:
		status := "loading"
		acceptable := false
		if d.Current != nil {
			status = ColorizeStatus(d.Current.Status)
			acceptable = bidding.CanAccept(*d.Current)
		}
		fmt.Fprintf(w, "%sBids for Request #%d%s (%s)\n", colorBold, snap.Token.Scope, colorReset, status)
		writeFetchError(w, d.FetchError)
		WriteBids(w, d.Bids, acceptable)

	case session.ViewStatus:
		fmt.Fprintf(w, "%sYour Requests%s\n", colorBold, colorReset)
		writeFetchError(w, d.FetchError)
		if d.Pending != nil {
			fmt.Fprintf(w, "%sAwaiting confirmation of bid #%d for request #%d…%s\n",
				colorYellow, d.Pending.BidID, d.Pending.RequestID, colorReset)
		}
		WriteRequests(w, d.Requests)

	case session.ViewAllBids:
		fmt.Fprintf(w, "%sAll Requests & Their Bids%s\n", colorBold, colorReset)
		writeFetchError(w, d.FetchError)
		WriteRequests(w, d.AllRequests)
		if d.SelectedRequest != 0 {
			acceptable := false
			for _, r := range d.AllRequests {
				if r.ID == d.SelectedRequest {
					acceptable = bidding.CanAccept(r)
				}
			}
			fmt.Fprintf(w, "\n%sBids for Request #%d%s\n", colorBold, d.SelectedRequest, colorReset)
			WriteBids(w, d.SelectedBids, acceptable)
		} else if len(d.AllRequests) > 0 {
			fmt.Fprintf(w, "%sType 'select <request>' to view its bids.%s\n", colorDim, colorReset)
		}

	case session.ViewJobs:
		WriteProviderView(w, availability.Derive(d.Status, d.Jobs, d.FetchError))

	case session.ViewSpecs:
		fmt.Fprintf(w, "%sProvider Specs%s\n", colorBold, colorReset)
		WriteSpecs(w, d.Specs)
		fmt.Fprintf(w, "%sType 'specs <cores> <ghz> <memory>' to upload.%s\n", colorDim, colorReset)
	}
}

func writeFetchError(w io.Writer, msg string) {
	if msg != "" {
		fmt.Fprintf(w, "%s%s%s\n", colorRed, msg, colorReset)
	}
}
