package domain

// ServerStatus is the active/standby role of this node as reported by the
// master service probe.
type ServerStatus int

const (
	ServerStatusUnknown ServerStatus = iota
	ServerStatusActive
	ServerStatusStandby
)

func (s ServerStatus) String() string {
	switch s {
	case ServerStatusActive:
		return "ACTIVE"
	case ServerStatusStandby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}

// ServerStatusProvider is satisfied by anything that can tell whether this
// node should currently produce output files.
type ServerStatusProvider interface {
	Status() ServerStatus
}
