package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cricketbid/auction-backend/internal/auth"
	"github.com/cricketbid/auction-backend/internal/hub"
	"github.com/cricketbid/auction-backend/internal/ws"
)

// SetupRoutes wires the live auction endpoints. Auction/team/player
// CRUD lives in a separate service; this process only carries the
// realtime protocol.
func SetupRoutes(h *hub.Hub, loader ws.Loader, verifier auth.Verifier, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, loader, verifier, log))
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
