// Package health reports whether the sync service and the relays it depends
// on are working.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/metrics"
	"github.com/Shugur-Network/dmsync/internal/models"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// CheckTimeout bounds one health request.
const CheckTimeout = 5 * time.Second

// ComponentStatus represents the status of a specific component
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// RelayStatus is the health of one relay as recorded in the snapshot.
type RelayStatus struct {
	URL     string       `json:"url"`
	Status  HealthStatus `json:"status"`
	Error   string       `json:"error,omitempty"`
	Blocked bool         `json:"blocked,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus       `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	Version    string             `json:"version"`
	Uptime     string             `json:"uptime"`
	LastSync   *time.Time         `json:"last_sync,omitempty"`
	Components []*ComponentStatus `json:"components"`
	Relays     []RelayStatus      `json:"relays"`
	Counters   metrics.Summary    `json:"counters"`
}

// ClientCounter reports the number of connected notification clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthChecker derives service health from the latest snapshot.
type HealthChecker struct {
	provider   domain.SnapshotProvider
	clients    ClientCounter
	logger     *zap.Logger
	startTime  time.Time
	version    string
	staleAfter time.Duration
	now        func() time.Time
}

// NewHealthChecker creates a checker. A sync older than staleAfter marks the
// service degraded; zero disables the check. clients may be nil.
func NewHealthChecker(provider domain.SnapshotProvider, clients ClientCounter, logger *zap.Logger, version string, staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		provider:   provider,
		clients:    clients,
		logger:     logger.Named("health"),
		startTime:  time.Now(),
		version:    version,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// CheckHealth performs a health check
func (h *HealthChecker) CheckHealth(_ context.Context) *HealthResponse {
	snap := h.provider.Snapshot()
	relays := ClassifyRelays(snap)

	components := []*ComponentStatus{
		h.checkSync(snap),
		summarizeRelays(relays),
		checkMemory(),
		h.checkSystemResources(),
	}

	resp := &HealthResponse{
		Status:     overallStatus(components),
		Timestamp:  h.now(),
		Version:    h.version,
		Uptime:     formatUptime(h.now().Sub(h.startTime)),
		Components: components,
		Relays:     relays,
		Counters:   metrics.GetSummary(),
	}
	if last := h.provider.LastSync(); !last.IsZero() {
		resp.LastSync = &last
	}
	return resp
}

func (h *HealthChecker) checkSync(snap *models.Snapshot) *ComponentStatus {
	status := &ComponentStatus{Name: "sync", Details: make(map[string]any)}
	if snap == nil {
		status.Status = StatusDegraded
		status.Message = "No sync has completed yet"
		return status
	}

	status.Details["conversations"] = len(snap.Conversations)
	status.Details["messages"] = snap.MessageCount()
	status.Details["participants"] = len(snap.Participants)
	status.Details["query_limit_reached"] = snap.SyncState.QueryLimitReached

	last := h.provider.LastSync()
	age := h.now().Sub(last)
	status.Details["age_seconds"] = int64(age.Seconds())

	switch {
	case h.staleAfter > 0 && age > h.staleAfter:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Last sync was %s ago", formatUptime(age))
	case snap.SyncState.QueryLimitReached:
		status.Status = StatusDegraded
		status.Message = "History may be incomplete: query limit reached"
	default:
		status.Status = StatusHealthy
		status.Message = "Snapshot is current"
	}
	return status
}

// ClassifyRelays turns the endpoint health of snap into per-relay statuses,
// sorted by URL. Blocked relays are reported healthy since they are never
// queried.
func ClassifyRelays(snap *models.Snapshot) []RelayStatus {
	if snap == nil {
		return []RelayStatus{}
	}
	out := make([]RelayStatus, 0, len(snap.EndpointHealth))
	for url, info := range snap.EndpointHealth {
		rs := RelayStatus{URL: url, Status: StatusHealthy, Blocked: info.IsBlocked}
		if !info.IsBlocked && !info.LastQuerySucceeded {
			rs.Status = StatusUnhealthy
			if info.LastQueryError != nil {
				rs.Error = *info.LastQueryError
			}
		}
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// summarizeRelays is unhealthy when no queried relay answered and degraded
// when some did not.
func summarizeRelays(relays []RelayStatus) *ComponentStatus {
	status := &ComponentStatus{Name: "relays", Details: make(map[string]any)}

	queried, failed, blocked := 0, 0, 0
	for _, r := range relays {
		if r.Blocked {
			blocked++
			continue
		}
		queried++
		if r.Status == StatusUnhealthy {
			failed++
		}
	}
	status.Details["queried"] = queried
	status.Details["failed"] = failed
	status.Details["blocked"] = blocked

	switch {
	case queried == 0:
		status.Status = StatusHealthy
		status.Message = "No relays queried yet"
	case failed == queried:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("All %d relays failed", queried)
	case failed > 0:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("%d of %d relays failed", failed, queried)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("All %d relays answered", queried)
	}
	return status
}

// checkMemory checks memory usage
func checkMemory() *ComponentStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := &ComponentStatus{
		Name:    "memory",
		Details: make(map[string]any),
	}

	allocMB := float64(m.Alloc) / 1024 / 1024
	status.Details["alloc_mb"] = allocMB
	status.Details["sys_mb"] = float64(m.Sys) / 1024 / 1024
	status.Details["num_gc"] = m.NumGC

	const (
		memoryWarningMB  = 500
		memoryCriticalMB = 1000
	)

	switch {
	case allocMB > memoryCriticalMB:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High memory usage: %.1f MB", allocMB)
	case allocMB > memoryWarningMB:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated memory usage: %.1f MB", allocMB)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("Memory usage normal: %.1f MB", allocMB)
	}
	return status
}

// checkSystemResources checks goroutines and notification clients
func (h *HealthChecker) checkSystemResources() *ComponentStatus {
	status := &ComponentStatus{
		Name:    "system",
		Details: make(map[string]any),
	}

	goroutineCount := runtime.NumGoroutine()
	status.Details["goroutines"] = goroutineCount
	status.Details["cpus"] = runtime.NumCPU()
	if h.clients != nil {
		status.Details["ws_clients"] = h.clients.ClientCount()
	}

	const (
		goroutineWarning  = 1000
		goroutineCritical = 5000
	)

	switch {
	case goroutineCount > goroutineCritical:
		status.Status = StatusUnhealthy
		status.Message = fmt.Sprintf("High goroutine count: %d", goroutineCount)
	case goroutineCount > goroutineWarning:
		status.Status = StatusDegraded
		status.Message = fmt.Sprintf("Elevated goroutine count: %d", goroutineCount)
	default:
		status.Status = StatusHealthy
		status.Message = fmt.Sprintf("System resources normal: %d goroutines", goroutineCount)
	}
	return status
}

// overallStatus is the worst status among components
func overallStatus(components []*ComponentStatus) HealthStatus {
	worst := StatusHealthy
	for _, comp := range components {
		switch comp.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			worst = StatusDegraded
		}
	}
	return worst
}

// formatUptime formats a duration as a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// HandleHealth is the HTTP handler for health checks. With ?ready=1 a
// degraded service still reports ready; only unhealthy returns 503.
func (h *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), CheckTimeout)
	defer cancel()

	resp := h.CheckHealth(ctx)

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
		return
	}

	h.logger.Debug("Health check completed",
		zap.String("status", string(resp.Status)),
		zap.Int("status_code", statusCode),
		zap.String("client_ip", r.RemoteAddr))
}
