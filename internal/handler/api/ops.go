package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	domrepo "Tehama/internal/domain/repository"
	icache "Tehama/internal/service/cache"
	"Tehama/internal/service/ratelimit"
	"Tehama/internal/usecase"
	xhttp "Tehama/pkg/http"
	applogger "Tehama/pkg/logger"
)

const historyCacheTTL = 30 * time.Second

// OpsHandler serves the operational plain net/http endpoints: health,
// cache introspection, and a cached read-only history view.
type OpsHandler struct {
	history *usecase.History
	store   domrepo.Storage
	stream  domrepo.QuoteStream
	cache   icache.BytesCache
	local   *icache.TTLCache
	rl      *ratelimit.Limiter
	l       *applogger.Logger
}

func NewOpsHandler(history *usecase.History, store domrepo.Storage, stream domrepo.QuoteStream) *OpsHandler {
	return &OpsHandler{history: history, store: store, stream: stream, rl: ratelimit.New()}
}

func (h *OpsHandler) SetCache(c icache.BytesCache) {
	h.cache = c
	if t, ok := c.(*icache.TTLCache); ok {
		h.local = t
	}
}

// SetLogger injects a structured logger.
func (h *OpsHandler) SetLogger(l *applogger.Logger) { h.l = l }

// Health reports storage and feed health. Degraded components make the
// endpoint answer 503 so orchestrators can restart or drain.
func (h *OpsHandler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if h.store != nil {
			if err := h.store.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["storage"] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status["storage"] = "ok"
			}
		}
		if h.stream != nil {
			status["stream_connected"] = h.stream.IsConnected()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

// History is a rate-limited, byte-cached read of recent recommendations.
func (h *OpsHandler) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instrument := strings.ToUpper(r.URL.Query().Get("instrument"))
		if instrument == "" {
			if h.l != nil {
				h.l.Warn("ops.history missing instrument")
			}
			http.Error(w, "instrument required", http.StatusBadRequest)
			return
		}
		limit := xhttp.ParseIntDefault(r.URL.Query().Get("limit"), 20)

		if !h.rl.Allow(r.RemoteAddr+":history", 5, 2) {
			if h.l != nil {
				h.l.Warn("ops.history rate_limited", applogger.String("remote", r.RemoteAddr))
			}
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}

		cacheKey := "history:" + instrument + ":" + strconv.Itoa(limit)
		if h.cache != nil {
			if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
				if h.l != nil {
					h.l.Warn("ops.history cache_get_error", applogger.Error(err))
				}
			} else if ok {
				w.Header().Set("Content-Type", "application/json")
				if _, err := w.Write(b); err != nil && h.l != nil {
					h.l.Warn("ops.history write_error", applogger.Error(err))
				}
				return
			}
		}

		recs, err := h.history.Recent(r.Context(), instrument, limit)
		if err != nil {
			if h.l != nil {
				h.l.Error("ops.history error", applogger.Error(err))
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		b, err := json.Marshal(recs)
		if err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
			return
		}
		if h.cache != nil {
			if err := h.cache.SetBytes(cacheKey, b, historyCacheTTL); err != nil && h.l != nil {
				h.l.Warn("ops.history cache_set_error", applogger.Error(err))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(b); err != nil && h.l != nil {
			h.l.Warn("ops.history write_error", applogger.Error(err))
		}
	}
}

// CacheStats reports live entry counts for the in-process cache.
func (h *OpsHandler) CacheStats() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := map[string]interface{}{"backend": "none"}
		if h.local != nil {
			stats["backend"] = "memory"
			stats["entries"] = h.local.Len()
		} else if h.cache != nil {
			stats["backend"] = "redis"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}

// CacheInvalidate drops one key, or everything when key is omitted and
// the backing cache supports a purge.
func (h *OpsHandler) CacheInvalidate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		key := r.URL.Query().Get("key")
		switch {
		case key != "" && h.cache != nil:
			if err := h.cache.Delete(key); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		case key == "" && h.local != nil:
			h.local.Purge()
		}
		if h.l != nil {
			h.l.Info("cache invalidated", applogger.String("key", key))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
