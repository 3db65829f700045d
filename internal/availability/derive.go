package availability

import "hpcmarket/pkg/api"

// Display is what the jobs view shows. Exactly one display applies to any
// combination of inputs.
type Display int

const (
	// DisplayLoading: no status has been fetched yet.
	DisplayLoading Display = iota
	// DisplayOpenJobs: the provider is available; jobs can be bid on.
	DisplayOpenJobs
	// DisplayCurrentJob: the provider is busy with a known job.
	DisplayCurrentJob
	// DisplayUnavailable: the provider is busy without job details.
	DisplayUnavailable
	// DisplayError: the latest status fetch failed.
	DisplayError
)

func (d Display) String() string {
	switch d {
	case DisplayLoading:
		return "loading"
	case DisplayOpenJobs:
		return "open_jobs"
	case DisplayCurrentJob:
		return "current_job"
	case DisplayUnavailable:
		return "unavailable"
	case DisplayError:
		return "error"
	}
	return "unknown"
}

// AllowsBidding reports whether the bid action is offered.
func (d Display) AllowsBidding() bool {
	return d == DisplayOpenJobs
}

// MsgUnavailable is shown when the provider is busy and the backend gave no
// job detail.
const MsgUnavailable = "Provider unavailable."

// View is the derived content of the jobs view.
type View struct {
	Display Display
	Jobs    []api.Job
	Current *api.CurrentJob
	Message string
}

// Derive maps the synchronized provider data to a display. A nil status with
// a message means the status fetch failed; without a message nothing has been
// fetched yet. Jobs are only carried into the open-jobs display.
func Derive(status *api.ProviderStatus, jobs []api.Job, message string) View {
	switch {
	case status == nil && message != "":
		return View{Display: DisplayError, Message: message}
	case status == nil:
		return View{Display: DisplayLoading}
	case status.Available:
		return View{Display: DisplayOpenJobs, Jobs: jobs, Message: message}
	case status.CurrentJob != nil:
		return View{Display: DisplayCurrentJob, Current: status.CurrentJob}
	default:
		return View{Display: DisplayUnavailable, Message: MsgUnavailable}
	}
}
