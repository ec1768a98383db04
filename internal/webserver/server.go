package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/broadcast"
	"github.com/Nemupy/tokumei-jinro/internal/session"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/status"
	"github.com/Nemupy/tokumei-jinro/internal/version"
	"go.uber.org/zap"
)

var httpServer *http.Server

// Config is what the spectator server needs to run.
type Config struct {
	Port      int
	PublicURL string
	Sessions  *session.Store
	// RelayLogRetentionDays prunes the relay log on read; 0 keeps everything.
	RelayLogRetentionDays int
}

// webSocketBroadcaster implements broadcast.MessageBroadcaster using WebSocket
type webSocketBroadcaster struct{}

func (w *webSocketBroadcaster) BroadcastMessage(message interface{}) {
	BroadcastMessage(message)
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// BroadcastMessage sends a message to all connected WebSocket clients
func BroadcastMessage(message interface{}) {
	msgMap, ok := message.(map[string]interface{})
	if !ok {
		return
	}
	msgType, ok := msgMap["type"].(string)
	if !ok {
		return
	}

	if data, hasData := msgMap["data"]; hasData {
		BroadcastWSMessage(msgType, data)
		return
	}

	cleanData := make(map[string]interface{})
	for k, v := range msgMap {
		if k != "type" {
			cleanData[k] = v
		}
	}
	BroadcastWSMessage(msgType, cleanData)
}

// NewMux registers every spectator route.
func NewMux(cfg Config) *http.ServeMux {
	h := &handlers{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", corsMiddleware(h.handleStatus))
	mux.HandleFunc("/api/session", corsMiddleware(h.handleSession))
	mux.HandleFunc("/api/history", corsMiddleware(h.handleHistory))
	mux.HandleFunc("/api/relay-log", corsMiddleware(h.handleRelayLog))
	mux.HandleFunc("/api/spectator/qr", corsMiddleware(h.handleSpectatorQR))
	mux.HandleFunc("/ws", handleWS)
	mux.Handle("/", handleSpectatorPage())
	return mux
}

func StartWebServer(cfg Config) error {
	broadcast.SetBroadcaster(&webSocketBroadcaster{})
	StartWSHub()

	if cfg.Sessions != nil {
		cfg.Sessions.OnChange(func(s *session.Session) {
			BroadcastWSMessage(broadcast.EventSessionChanged, newSessionView(s))
		})
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting web server", zap.String("address", addr), zap.String("public_url", cfg.PublicURL))

	httpServer = &http.Server{
		Addr:         addr,
		Handler:      NewMux(cfg),
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", cfg.Port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func Shutdown() {
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}

type handlers struct {
	cfg Config
}

// handleStatus returns the current system status
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	phase := session.PhaseIdle
	if h.cfg.Sessions != nil {
		phase = h.cfg.Sessions.Phase()
	}

	writeJSON(w, map[string]interface{}{
		"phase":      phase,
		"spectators": ClientCount(),
		"discord":    status.Current(),
		"version":    version.Current(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
