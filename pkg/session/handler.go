package session

import "strconv"

// Handler is implemented by concrete engine sessions (game, preview, demo playback...).
// Every hook runs on the event loop goroutine.
type Handler interface {
	// Arguments builds the engine command line. port is the listener the engine must connect back to.
	Arguments(port int) []string

	// FirstSend runs once, right after the engine connected. It usually sends the handshake.
	FirstSend(s *Session)

	// ClientRead runs after every non-empty chunk was appended to the read buffer.
	ClientRead(s *Session)

	// ClientDisconnect runs once, before the session is torn down.
	ClientDisconnect(s *Session)

	// CouldBeRemoved opts a still-waiting session into preemption by a newer request.
	CouldBeRemoved() bool
}

// BaseHandler provides the default hooks. Embed it and override what you need.
type BaseHandler struct{}

// Arguments passes the listener port as the only engine argument.
func (BaseHandler) Arguments(port int) []string {
	return []string{strconv.Itoa(port)}
}

func (BaseHandler) FirstSend(*Session) {}

func (BaseHandler) ClientRead(*Session) {}

func (BaseHandler) ClientDisconnect(*Session) {}

func (BaseHandler) CouldBeRemoved() bool { return false }
