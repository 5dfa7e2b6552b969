package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/blogmedia/blogmedia/shared/logger"
	"github.com/blogmedia/blogmedia/shared/utils"
)

const readyTimeout = 2 * time.Second

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready pings every registered dependency in parallel and answers 503 when
// any of them fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	results := make([]error, len(h.checks))
	var wg sync.WaitGroup
	for i, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = check.Checker.Ping(ctx)
		}()
	}
	wg.Wait()

	status := http.StatusOK
	resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for i, check := range h.checks {
		if err := results[i]; err != nil {
			logger.Log.Warn("readiness check failed", "check", check.Name, "error", err)
			resp.Checks[check.Name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name] = "ok"
	}
	utils.WriteJSON(w, status, resp)
}
