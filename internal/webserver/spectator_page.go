package webserver

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"go.uber.org/zap"
)

//go:embed spectator
var spectatorAssets embed.FS

// handleSpectatorPage 観戦ページを配信
func handleSpectatorPage() http.Handler {
	pageFS, err := fs.Sub(spectatorAssets, "spectator")
	if err != nil {
		logger.Error("Failed to get spectator page filesystem", zap.Error(err))
		return http.NotFoundHandler()
	}
	files := http.FileServer(http.FS(pageFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// 存在しないパスは index.html にフォールバック
		if r.URL.Path != "/" {
			if f, err := pageFS.Open(r.URL.Path[1:]); err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		files.ServeHTTP(w, r)
	})
}
