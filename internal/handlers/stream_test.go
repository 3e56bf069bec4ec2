package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
)

func dialStream(t *testing.T, srv *httptest.Server, id, key string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/triggers/" + id + "/stream"
	header := http.Header{}
	header.Set("X-API-Key", key)
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) streamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamTrigger_DeliversNotificationsThenCloses(t *testing.T) {
	m := pipeline.NewManager()
	srv := httptest.NewServer(newTestRouter(m, &fakeCounter{}))
	defer srv.Close()

	s, err := m.Start(context.Background(), "acme", pipeline.StartOptions{EventName: "paywall_open"})
	require.NoError(t, err)

	conn, _, err := dialStream(t, srv, s.ID(), acmeKey)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	m.Deliver(ctx, "acme", s.ID(), models.MustUpdate(models.KindDecision, models.DecisionFlowShown, "", models.Payload{}))
	m.Deliver(ctx, "acme", s.ID(), models.MustUpdate(models.KindEntitlement, "", models.EntitlementAllowed, models.Payload{}))

	first := readMessage(t, conn)
	assert.Equal(t, "update", first.Type)
	assert.Equal(t, 1, first.Seq)
	assert.False(t, first.Terminal)

	second := readMessage(t, conn)
	assert.Equal(t, "update", second.Type)
	assert.True(t, second.Terminal)
	require.NotNil(t, second.Update)
	assert.Equal(t, models.EntitlementAllowed, second.Update.EntitlementKind())

	closed := readMessage(t, conn)
	assert.Equal(t, "closed", closed.Type)
	assert.Equal(t, "completed", closed.CloseReason)
	assert.Equal(t, 2, closed.Updates)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamTrigger_ClosedSessionSendsClosure(t *testing.T) {
	m := pipeline.NewManager()
	srv := httptest.NewServer(newTestRouter(m, &fakeCounter{}))
	defer srv.Close()

	s, err := m.Start(context.Background(), "acme", pipeline.StartOptions{})
	require.NoError(t, err)
	s.Cancel(pipeline.CloseCancelled)
	<-s.Done()

	conn, _, err := dialStream(t, srv, s.ID(), acmeKey)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, "closed", msg.Type)
	assert.Equal(t, "cancelled", msg.CloseReason)
	assert.Nil(t, msg.Update)
}

func TestStreamTrigger_UnknownSession(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(pipeline.NewManager(), &fakeCounter{}))
	defer srv.Close()

	_, resp, err := dialStream(t, srv, "missing", acmeKey)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamTrigger_ClientLeavingDoesNotBlockSession(t *testing.T) {
	m := pipeline.NewManager()
	srv := httptest.NewServer(newTestRouter(m, &fakeCounter{}))
	defer srv.Close()

	s, err := m.Start(context.Background(), "acme", pipeline.StartOptions{})
	require.NoError(t, err)

	conn, _, err := dialStream(t, srv, s.ID(), acmeKey)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	for i := 0; i < 40; i++ {
		m.Deliver(context.Background(), "acme", s.ID(), models.MustUpdate(models.KindDecision, models.DecisionJourneyResumed, "", models.Payload{}))
	}
	m.Deliver(context.Background(), "acme", s.ID(), models.NewError(models.Payload{}))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session stalled behind a departed stream client")
	}
}
