package types

import "time"

// VMState is the authoritative running/stopped state of the managed VM,
// derived from the existence of the hypervisor's lock resource.
type VMState string

const (
	VMStateUnknown VMState = "unknown" // before the first evaluation
	VMStateRunning VMState = "running" // lock resource present
	VMStateStopped VMState = "stopped" // lock resource absent
)

// StateFromExists maps lock-resource existence to a VMState.
func StateFromExists(exists bool) VMState {
	if exists {
		return VMStateRunning
	}
	return VMStateStopped
}

// StatusRecord is the per-VM diagnostics record persisted by the watcher on
// every committed transition. Purely informational — the presence flag file
// remains the state contract; this record only feeds `vmsentinel status`.
type StatusRecord struct {
	VMName     string    `json:"vm_name"`
	State      VMState   `json:"state"`
	ChangedAt  time.Time `json:"changed_at"`
	WatcherPID int       `json:"watcher_pid"`
}

// StatusIndex is the top-level structure of the status DB file, keyed by VM
// name so several watchers sharing a state dir do not clobber each other.
type StatusIndex struct {
	Records map[string]*StatusRecord `json:"records"`
}

// Init implements storage.Initer — initialises nil maps after deserialization.
func (idx *StatusIndex) Init() {
	if idx.Records == nil {
		idx.Records = make(map[string]*StatusRecord)
	}
}
