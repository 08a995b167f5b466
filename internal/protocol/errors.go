package protocol

import "fmt"

// Client-visible rejection messages. These strings are part of the wire
// contract and must not be reworded.
const (
	MsgVSIDRequired    = "This server requires VSID to connect. None present."
	MsgIdentifierInUse = "Identifier already in use"
	MsgTooManySessions = "Too many sessions"
	MsgUnknownRequest  = "Unknown request"
	MsgNoLivingAgent   = "No living agent with requested session ID"
)

const exceptionPrefix = "Exception occured during request processing: "

// ExceptionMessage wraps any handler fault into the uniform client-visible
// shape. The misspelling of "occured" is part of the contract.
func ExceptionMessage(err error) string {
	return fmt.Sprintf("%s%v", exceptionPrefix, err)
}

func ExceptionFailure(err error) Failure {
	return NewFailure(ExceptionMessage(err))
}
