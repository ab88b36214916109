package updater

import "github.com/tqbf/patchup/pkg/patchlist"

type State int

const (
	Idle State = iota
	CheckingForUpdates
	UpToDate
	UpdatesAvailable
	Downloading
	Verifying
	Applying
	Complete
	Failed
)

var stateNames = [...]string{
	Idle:               "idle",
	CheckingForUpdates: "checking",
	UpToDate:           "up_to_date",
	UpdatesAvailable:   "updates_available",
	Downloading:        "downloading",
	Verifying:          "verifying",
	Applying:           "applying",
	Complete:           "complete",
	Failed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Event is handed to the observer on every state change and on progress.
// Done and Total count bytes while Downloading and files while Applying.
type Event struct {
	Session string
	State   State
	Version int
	Archive string
	Done    int64
	Total   int64
	Message string
	Err     error
}

type CheckResult struct {
	Local   int
	Latest  int
	Pending []patchlist.Entry
}

func (r *CheckResult) UpToDate() bool {
	return len(r.Pending) == 0
}
