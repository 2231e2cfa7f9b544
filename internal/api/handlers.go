package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/purchase-predictor/internal/scalar"
)

// WelcomeMessage is the body of GET /.
const WelcomeMessage = "Welcome to the Service Purchase Prediction API"

type handlers struct {
	ranker  Ranker
	topK    int
	metrics *Metrics
}

func (h *handlers) welcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(WelcomeMessage))
}

func (h *handlers) mostPurchased(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ranked, err := h.ranker.Top(r.Context(), h.topK)
	if h.metrics != nil {
		h.metrics.RankLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.RankFailures.Inc()
		}
		zap.L().Error("ranking request failed",
			zap.String("request_id", r.Header.Get(RequestIDHeader)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"services": h.ranker.Rows()}
	err := h.ranker.Ready()
	if err == nil {
		body["status"] = "ok"
		writeJSON(w, http.StatusOK, scalar.NormalizeMap(body))
		return
	}
	if loadErr := h.ranker.LoadErr(); loadErr != nil {
		err = loadErr
	}
	body["status"] = "degraded"
	body["error"] = err.Error()
	writeJSON(w, http.StatusServiceUnavailable, scalar.NormalizeMap(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("encode response", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode response: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
