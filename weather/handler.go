package weather

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/welkome/identity"
	"github.com/welkome/identity/internal/util"
)

// Handler serves the forecast as a JSON array. Authentication and scope
// checks are the router's job.
func Handler(g *Generator, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forecast := g.Forecast()

		if p, ok := identity.PrincipalFromContext(r.Context()); ok {
			logger.Debug("Serving forecast",
				"subject", util.SafeTruncate(p.Subject, 8),
				"days", len(forecast))
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(forecast); err != nil {
			logger.Error("Failed to encode forecast", "error", err)
		}
	})
}
