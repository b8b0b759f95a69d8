package handlers

import (
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

func HandleConfig(cfg *config.Configuration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings := make(map[string]string)
		for _, k := range config.Keys() {
			v, err := cfg.Get(k)
			if err != nil {
				renderError(w, r, err)
				return
			}
			settings[k] = v
		}
		render.EncodeResponse(w, http.StatusOK, models.ConfigResponse{
			ConfigDir: cfg.ConfigDir().String(),
			DataDir:   cfg.DataDir().String(),
			Workspace: cfg.Workspace().String(),
			Settings:  settings,
		})
	}
}
