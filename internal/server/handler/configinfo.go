package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/kalshibot/internal/config"
)

// ConfigHandler exposes the running configuration with secrets redacted.
type ConfigHandler struct {
	redacted config.Config
	logger   *slog.Logger
}

// NewConfigHandler creates a ConfigHandler. The redaction happens once at
// construction so a handler can never leak a live secret.
func NewConfigHandler(cfg *config.Config, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		redacted: config.RedactedConfig(cfg),
		logger:   logger,
	}
}

// GetConfig returns the redacted active configuration.
// GET /api/config
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.redacted)
}
