package webserver

import (
	"net/http"
	"strconv"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// handleSpectatorQR handles GET /api/spectator/qr
// It renders a PNG QR code pointing at the spectator page so people in the room can follow along.
func (h *handlers) handleSpectatorQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.cfg.PublicURL == "" {
		http.Error(w, "PUBLIC_URL is not configured", http.StatusServiceUnavailable)
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > maxQRSize {
			http.Error(w, "size must be between 64 and 1024", http.StatusBadRequest)
			return
		}
		size = parsed
	}

	png, err := qrcode.Encode(h.cfg.PublicURL+"/", qrcode.Medium, size)
	if err != nil {
		logger.Error("Failed to render spectator QR code", zap.Error(err))
		http.Error(w, "Failed to render QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=600")
	w.Write(png)
}
