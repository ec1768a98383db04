package broadcast

import "sync"

// MessageBroadcaster pushes events to spectator clients.
type MessageBroadcaster interface {
	BroadcastMessage(message interface{})
}

// Spectator event types.
const (
	EventSessionChanged  = "session_changed"
	EventRelayMessage    = "relay_message"
	EventVoteProgress    = "vote_progress"
	EventReveal          = "reveal"
	EventBotConnected    = "bot_connected"
	EventBotDisconnected = "bot_disconnected"
)

var (
	mu          sync.RWMutex
	broadcaster MessageBroadcaster
)

// SetBroadcaster installs the process-wide broadcaster. Passing nil disables broadcasting.
func SetBroadcaster(b MessageBroadcaster) {
	mu.Lock()
	defer mu.Unlock()
	broadcaster = b
}

// Send forwards message to the installed broadcaster, if any.
// Messages are maps with a "type" key and an optional "data" key.
func Send(message interface{}) {
	mu.RLock()
	b := broadcaster
	mu.RUnlock()

	if b != nil {
		b.BroadcastMessage(message)
	}
}
