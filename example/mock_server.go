package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// StartMockOnboardingServer runs a mock onboarding API. Each client reports
// PENDING until a random point 2-5 seconds after it is first requested, and
// ACTIVE afterwards.
// Call this in a goroutine before polling it.
func StartMockOnboardingServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/clients", newOnboardingHandler(func() time.Duration {
		return time.Duration(2000+rand.Intn(3001)) * time.Millisecond
	}))

	slog.Info("mock onboarding server starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server failed", "error", err)
	}
}

// newOnboardingHandler serves /clients?id=. A client turns ACTIVE once the
// delay returned by activateAfter has passed since its first request.
func newOnboardingHandler(activateAfter func() time.Duration) http.Handler {
	var (
		activeAt = make(map[string]time.Time)
		mu       sync.Mutex
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		mu.Lock()
		at, exists := activeAt[id]
		if !exists {
			at = time.Now().Add(activateAfter())
			activeAt[id] = at
		}
		mu.Unlock()

		status := "PENDING"
		if !time.Now().Before(at) {
			status = "ACTIVE"
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"data": map[string]string{"clnt_id": id, "clnt_stat": status},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}
