package session

import "hpcmarket/pkg/api"

// Role is the kind of actor driving the session.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleClient, RoleProvider:
		return Role(s), true
	}
	return "", false
}

// View selects what is rendered and which synchronizer runs.
type View string

const (
	ViewLogin   View = "login"
	ViewSubmit  View = "submit"
	ViewBids    View = "bids"
	ViewStatus  View = "status"
	ViewAllBids View = "all_bids"
	ViewJobs    View = "jobs"
	ViewSpecs   View = "specs"
)

// DefaultView is the view selected right after login.
func (r Role) DefaultView() View {
	if r == RoleProvider {
		return ViewJobs
	}
	return ViewSubmit
}

// Views lists the views of the role in menu order.
func (r Role) Views() []View {
	if r == RoleProvider {
		return []View{ViewLogin, ViewJobs, ViewSpecs}
	}
	return []View{ViewLogin, ViewSubmit, ViewBids, ViewStatus, ViewAllBids}
}

// Allows reports whether v belongs to the role.
func (r Role) Allows(v View) bool {
	for _, candidate := range r.Views() {
		if candidate == v {
			return true
		}
	}
	return false
}

// BannerKind distinguishes informational banners from failures.
type BannerKind int

const (
	BannerNone BannerKind = iota
	BannerInfo
	BannerError
)

// Banner is the one-line message shown above the active view.
type Banner struct {
	Kind BannerKind
	Text string
}

// Info returns an informational banner.
func Info(text string) Banner { return Banner{Kind: BannerInfo, Text: text} }

// Failure returns an error banner.
func Failure(text string) Banner { return Banner{Kind: BannerError, Text: text} }

// PendingAccept is an accept the client issued and has not yet seen confirmed
// or contradicted by a poll.
type PendingAccept struct {
	RequestID int64
	BidID     int64
}

// Data holds every domain collection. It is replaced wholesale; slices inside
// are never modified in place.
type Data struct {
	// Form values of the submit and specs views
	Specs    api.Specs
	CodeText string

	// status view
	Requests []api.Request
	Pending  *PendingAccept

	// bids view: the owning request and its bids
	Current *api.Request
	Bids    []api.Bid

	// all_bids view
	AllRequests     []api.Request
	SelectedRequest int64
	SelectedBids    []api.Bid

	// jobs view
	Status *api.ProviderStatus
	Jobs   []api.Job

	// FetchError is the message of the latest failed poll; empty when it succeeded.
	FetchError string

	Banner Banner
}

func newData(role Role) Data {
	if role == RoleProvider {
		return Data{Specs: api.DefaultProviderSpecs}
	}
	return Data{Specs: api.DefaultClientSpecs}
}
