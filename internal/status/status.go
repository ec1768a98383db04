package status

import (
	"sync"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/broadcast"
)

// ConnectionChangeCallback is called when the gateway connection flips.
type ConnectionChangeCallback func(connected bool)

// Gateway is the Discord gateway state shown on /status.
type Gateway struct {
	Connected bool `json:"connected"`
	// Since is when the current state began; zero before the first connect.
	Since       time.Time `json:"since,omitempty"`
	Disconnects int       `json:"disconnects"`
}

var (
	mu        sync.RWMutex
	gateway   Gateway
	callbacks []ConnectionChangeCallback
	now       = time.Now
)

// SetBotConnected records a gateway connect or disconnect.
// Spectators and callbacks only hear about actual changes; discordgo repeats events on resume.
func SetBotConnected(connected bool) {
	mu.Lock()
	if gateway.Connected == connected && !gateway.Since.IsZero() {
		mu.Unlock()
		return
	}
	wasConnected := gateway.Connected
	gateway.Connected = connected
	gateway.Since = now()
	if wasConnected && !connected {
		gateway.Disconnects++
	}
	snapshot := gateway
	cbs := make([]ConnectionChangeCallback, len(callbacks))
	copy(cbs, callbacks)
	mu.Unlock()

	eventType := broadcast.EventBotDisconnected
	if connected {
		eventType = broadcast.EventBotConnected
	}
	broadcast.Send(map[string]interface{}{
		"type": eventType,
		"data": snapshot,
	})

	for _, cb := range cbs {
		if cb != nil {
			cb(connected)
		}
	}
}

// Current returns a copy of the gateway state.
func Current() Gateway {
	mu.RLock()
	defer mu.RUnlock()
	return gateway
}

func RegisterConnectionChangeCallback(cb ConnectionChangeCallback) {
	mu.Lock()
	defer mu.Unlock()
	callbacks = append(callbacks, cb)
}
