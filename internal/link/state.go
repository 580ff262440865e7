package link

//go:generate stringer -type=State -trimprefix=State -linecomment
type State uint8

const (
	StateDisconnected State = iota // disconnected
	StateConnecting                // connecting
	StateConnected                 // connected
	StateReconnecting              // reconnecting
	StateTimedOut                  // timed_out
)

// Pending reports whether a connection attempt may still succeed.
func (s State) Pending() bool { return s == StateConnecting || s == StateReconnecting }
