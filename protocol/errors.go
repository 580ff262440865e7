package protocol

import "github.com/juju/errors"

// Error taxonomy. Use errors.Cause(err) to classify annotated errors.
var (
	// ProtocolError: malformed or semantically invalid inbound message.
	ErrMalformed = errors.New("malformed message")
	// InvalidCommandError: command rejected at the call site.
	ErrInvalidCommand = errors.New("invalid command")
	// InvalidCommandError: send attempted while not connected, message dropped.
	ErrNotConnected = errors.New("not connected")
	// SessionTimeoutError: no successful connection within the session window.
	ErrSessionTimeout = errors.New("session timeout")
)

func IsMalformed(err error) bool    { return errors.Cause(err) == ErrMalformed }
func IsNotConnected(err error) bool { return errors.Cause(err) == ErrNotConnected }

// IsInvalidCommand reports both rejected commands and invalid local input.
func IsInvalidCommand(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrInvalidCommand || cause == ErrNotConnected || errors.IsNotValid(err)
}
