package process

import "errors"

// Outcome is the result of a termination attempt.
type Outcome int

const (
	// Delivered means the signal was sent, or the process was already gone.
	Delivered Outcome = iota
	// Failed means the platform supports the signal but delivery failed.
	Failed
	// Unsupported means the platform cannot deliver the signal at all.
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// ErrUnsupported is returned with Unsupported outcomes.
var ErrUnsupported = errors.New("termination signal not supported on this platform")

// Terminator sends termination signals to processes.
type Terminator interface {
	Terminate(pid int32) (Outcome, error)
}

// SignalTerminator terminates processes with SIGTERM.
type SignalTerminator struct{}

func (SignalTerminator) Terminate(pid int32) (Outcome, error) {
	if pid <= 0 {
		return Failed, errors.New("invalid pid")
	}
	return terminate(int(pid))
}
