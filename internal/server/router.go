// Package server exposes the operational HTTP surface: liveness and a
// status snapshot of both loops.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/vaultmail/internal/jobs"
	"github.com/cloo-solutions/vaultmail/internal/vault"
)

// SyncStats exposes vault loop counters.
type SyncStats interface {
	Stats() vault.Stats
}

// MailStats exposes mail loop counters.
type MailStats interface {
	Stats() jobs.MailStats
}

// ChunkCounter reports the number of indexed chunks.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

type RouterConfig struct {
	Sync  SyncStats
	Mail  MailStats
	Index ChunkCounter
}

type statusResponse struct {
	Vault      vault.Stats    `json:"vault"`
	Mail       jobs.MailStats `json:"mail"`
	Chunks     int            `json:"chunks"`
	LastResync string         `json:"last_resync,omitempty"`
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{}
		if cfg.Sync != nil {
			resp.Vault = cfg.Sync.Stats()
			if !resp.Vault.LastResync.IsZero() {
				resp.LastResync = resp.Vault.LastResync.UTC().Format(time.RFC3339)
			}
		}
		if cfg.Mail != nil {
			resp.Mail = cfg.Mail.Stats()
		}
		if cfg.Index != nil {
			count, err := cfg.Index.Count(r.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			resp.Chunks = count
		}
		writeJSON(w, http.StatusOK, resp)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
