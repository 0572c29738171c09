// Package web serves the synchronized snapshot over a small JSON API.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/conversations"
	"github.com/Shugur-Network/dmsync/internal/domain"
	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/health"
	"github.com/Shugur-Network/dmsync/internal/limiter"
	"github.com/Shugur-Network/dmsync/internal/metrics"
	"github.com/Shugur-Network/dmsync/internal/models"
)

const defaultMessageLimit = 200

// ConversationView is a conversation as listed by the API.
type ConversationView struct {
	models.Conversation
	Names  []string `json:"names"`
	Unread bool     `json:"unread"`
	Count  int      `json:"count"`
}

// StatusView summarizes the latest sync.
type StatusView struct {
	Version       string           `json:"version"`
	Synced        bool             `json:"synced"`
	LastSync      *time.Time       `json:"last_sync,omitempty"`
	Conversations int              `json:"conversations"`
	Messages      int              `json:"messages"`
	Participants  int              `json:"participants"`
	LatestMessage *time.Time       `json:"latest_message,omitempty"`
	SyncState     models.SyncState `json:"sync_state"`
	Counters      metrics.Summary  `json:"counters"`
}

// SearchView is the result of a search request.
type SearchView struct {
	Query         string             `json:"query"`
	Conversations []ConversationView `json:"conversations"`
	Messages      []models.Message   `json:"messages"`
}

// Handler provides the HTTP handlers of the read API.
type Handler struct {
	provider domain.SnapshotProvider
	health   *health.HealthChecker
	hub      *Hub
	logger   *zap.Logger
	cfg      config.ServerConfig
	metrics  config.MetricsConfig
	limiter  *limiter.RateLimiter
}

// NewHandler creates a handler. hub may be nil to disable /ws.
func NewHandler(provider domain.SnapshotProvider, checker *health.HealthChecker, hub *Hub, serverCfg config.ServerConfig, metricsCfg config.MetricsConfig, logger *zap.Logger) *Handler {
	return &Handler{
		provider: provider,
		health:   checker,
		hub:      hub,
		logger:   logger.Named("web"),
		cfg:      serverCfg,
		metrics:  metricsCfg,
		limiter:  limiter.NewRateLimiter(serverCfg.RequestsPerMin),
	}
}

// Cleanup forgets rate-limit state of clients idle for longer than maxIdle.
func (h *Handler) Cleanup(maxIdle time.Duration) {
	h.limiter.Cleanup(maxIdle)
}

// Routes returns the complete HTTP handler with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /api/status", errors.WrapHandler(h.HandleStatus))
	mux.Handle("GET /api/conversations", errors.WrapHandler(h.HandleConversations))
	mux.Handle("GET /api/conversations/{id}/messages", errors.WrapHandler(h.HandleMessages))
	mux.Handle("GET /api/participants", errors.WrapHandler(h.HandleParticipants))
	mux.Handle("GET /api/search", errors.WrapHandler(h.HandleSearch))
	mux.Handle("POST /api/resync", errors.WrapHandler(h.HandleResync))
	if h.health != nil {
		mux.HandleFunc("GET /health", h.health.HandleHealth)
	}
	if h.hub != nil {
		mux.Handle("GET /ws", errors.WrapHandler(h.hub.ServeWS))
	}
	if h.metrics.Enabled {
		mux.Handle("GET "+h.metrics.Path, promhttp.Handler())
	}

	metricsPath := h.metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return Chain(mux,
		errors.RecoveryMiddleware,
		CountRequests,
		SecurityMiddleware(APISecurityHeaders()),
		RateLimitMiddleware(h.limiter),
		ValidationMiddleware(APIInputValidation(metricsPath)),
	)
}

// HandleStatus reports the size and state of the latest snapshot.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) error {
	view := StatusView{Version: config.Version, Counters: metrics.GetSummary()}
	if snap := h.provider.Snapshot(); snap != nil {
		last := h.provider.LastSync()
		view.Synced = true
		view.LastSync = &last
		view.Conversations = len(snap.Conversations)
		view.Messages = snap.MessageCount()
		view.Participants = len(snap.Participants)
		view.SyncState = snap.SyncState
		if ts := conversations.LatestActivity(snap); ts > 0 {
			latest := ts.Time()
			view.LatestMessage = &latest
		}
	}
	return writeJSON(w, http.StatusOK, view)
}

// HandleConversations lists conversations, most recent first. With ?q= the
// list is filtered by subject and participant name.
func (h *Handler) HandleConversations(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.snapshot()
	if err != nil {
		return err
	}
	convs := snap.SortedConversations()
	if q := r.URL.Query().Get("q"); q != "" {
		convs = snap.SearchConversations(q)
	}
	return writeJSON(w, http.StatusOK, conversationViews(snap, convs))
}

// HandleMessages returns the newest messages of one conversation in
// chronological order.
func (h *Handler) HandleMessages(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.snapshot()
	if err != nil {
		return err
	}
	id := r.PathValue("id")
	if _, ok := snap.Conversation(id); !ok {
		return errors.NotFound("conversation", id)
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		return err
	}
	msgs := snap.ConversationMessages(id)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return writeJSON(w, http.StatusOK, msgs)
}

// HandleParticipants returns every known participant.
func (h *Handler) HandleParticipants(w http.ResponseWriter, r *http.Request) error {
	snap, err := h.snapshot()
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap.Participants)
}

// HandleSearch searches message text and conversations.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query().Get("q")
	if q == "" {
		return errors.Validation("MISSING_QUERY", "Query parameter q is required")
	}
	snap, err := h.snapshot()
	if err != nil {
		return err
	}
	msgs := snap.SearchMessages(q)
	if msgs == nil {
		msgs = []models.Message{}
	}
	return writeJSON(w, http.StatusOK, SearchView{
		Query:         q,
		Conversations: conversationViews(snap, snap.SearchConversations(q)),
		Messages:      msgs,
	})
}

// HandleResync runs a bootstrap and returns the new status.
func (h *Handler) HandleResync(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.provider.Resync(r.Context()); err != nil {
		return err
	}
	h.logger.Info("Resync requested",
		zap.String("client_ip", clientIP(r)),
		zap.String("request_id", errors.RequestID(r.Context())))
	return h.HandleStatus(w, r)
}

func (h *Handler) snapshot() (*models.Snapshot, error) {
	snap := h.provider.Snapshot()
	if snap == nil {
		return nil, errors.NotFound("snapshot", "no sync has completed yet")
	}
	return snap, nil
}

func conversationViews(snap *models.Snapshot, convs []models.Conversation) []ConversationView {
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		names := make([]string, 0, len(c.ParticipantPubkeys))
		for _, pk := range c.ParticipantPubkeys {
			names = append(names, snap.DisplayName(pk))
		}
		out = append(out, ConversationView{
			Conversation: c,
			Names:        names,
			Unread:       c.Unread(),
			Count:        len(snap.Messages[c.ID]),
		})
	}
	return out
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultMessageLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 10000 {
		return 0, errors.Validation("INVALID_LIMIT", "limit must be between 1 and 10000")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
