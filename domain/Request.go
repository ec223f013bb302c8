package domain

// Request represents a decoded frame sent by a peer.
type Request struct {
	Command  Command
	Argument string
	Raw      string
}
