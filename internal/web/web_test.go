package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	nostr "github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/config"
	"github.com/Shugur-Network/dmsync/internal/health"
	"github.com/Shugur-Network/dmsync/internal/models"
)

type fakeProvider struct {
	snap    *models.Snapshot
	resyncs int
}

func (p *fakeProvider) Snapshot() *models.Snapshot { return p.snap }

func (p *fakeProvider) Resync(context.Context) (*models.Snapshot, error) {
	p.resyncs++
	return p.snap, nil
}

func (p *fakeProvider) LastSync() time.Time {
	if p.snap == nil {
		return time.Time{}
	}
	return time.Unix(1_700_000_000, 0)
}

const convID = "group:aa,bb#plans"

func sampleSnapshot() *models.Snapshot {
	snap := models.NewSnapshot()
	snap.Participants["bb"] = models.Participant{Pubkey: "bb", DisplayName: "Bob"}
	snap.Conversations[convID] = models.Conversation{
		ID:                 convID,
		ParticipantPubkeys: []string{"aa", "bb"},
		Subject:            "plans",
		LastActivity:       30,
		HasNIP17:           true,
	}
	for i, text := range []string{"lunch tomorrow?", "sure", "see you at noon"} {
		snap.Messages[convID] = append(snap.Messages[convID], models.Message{
			ID:             string(rune('a' + i)),
			Content:        text,
			ConversationID: convID,
			Protocol:       models.ProtocolNIP17,
			CreatedAt:      nostr.Timestamp(10 * (i + 1)),
		})
	}
	return snap
}

func newServer(t *testing.T, p *fakeProvider, perMinute int) (http.Handler, *Hub) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	checker := health.NewHealthChecker(p, hub, zap.NewNop(), "test", 0)
	h := NewHandler(p, checker, hub,
		config.ServerConfig{RequestsPerMin: perMinute},
		config.MetricsConfig{Enabled: true, Path: "/metrics"},
		zap.NewNop())
	return h.Routes(), hub
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestBeforeFirstSync(t *testing.T) {
	h, _ := newServer(t, &fakeProvider{}, 0)

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Synced)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/conversations").Code)
}

func TestConversationsAndMessages(t *testing.T) {
	h, _ := newServer(t, &fakeProvider{snap: sampleSnapshot()}, 0)

	rec := get(t, h, "/api/conversations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	var convs []ConversationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, convID, convs[0].ID)
	assert.Equal(t, 3, convs[0].Count)
	assert.True(t, convs[0].Unread)
	assert.Equal(t, "Bob", convs[0].Names[1])

	rec = get(t, h, "/api/conversations/"+url.PathEscape(convID)+"/messages?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "sure", msgs[0].Content)
	assert.Equal(t, "see you at noon", msgs[1].Content)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/conversations/nope/messages").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/conversations/"+url.PathEscape(convID)+"/messages?limit=0").Code)
}

func TestSearch(t *testing.T) {
	h, _ := newServer(t, &fakeProvider{snap: sampleSnapshot()}, 0)

	rec := get(t, h, "/api/search?q=NOON")
	require.Equal(t, http.StatusOK, rec.Code)
	var view SearchView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "see you at noon", view.Messages[0].Content)
	assert.Empty(t, view.Conversations)

	rec = get(t, h, "/api/search?q=bob")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Conversations, 1)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/search").Code)
}

func TestResync(t *testing.T) {
	p := &fakeProvider{snap: sampleSnapshot()}
	h, _ := newServer(t, p, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/resync", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, p.resyncs)
}

func TestRequestValidation(t *testing.T) {
	h, _ := newServer(t, &fakeProvider{snap: sampleSnapshot()}, 0)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/unknown").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/conversations?debug=1").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/search?q="+strings.Repeat("x", 2000)).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/health").Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newServer(t, &fakeProvider{}, 2)

	assert.Equal(t, http.StatusOK, get(t, h, "/api/status").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/api/status").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, h, "/api/status").Code)
}

func TestHubNotifiesClients(t *testing.T) {
	h, hub := newServer(t, &fakeProvider{}, 0)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifySynced(sampleSnapshot())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var evt SyncEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, "synced", evt.Type)
	assert.Equal(t, 1, evt.Conversations)
	assert.Equal(t, 3, evt.Messages)
	assert.Equal(t, 1, evt.Unread)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())
}
