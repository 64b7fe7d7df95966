package dash

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
)

func TestStore_RingNewestFirst(t *testing.T) {
	s := NewStore(3)
	assert.Empty(t, s.List())

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, s.Report(context.Background(), types.Report{Pass: i}))
	}
	got := s.List()
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{5, 4, 3}, []uint64{got[0].Pass, got[1].Pass, got[2].Pass})
}

func TestHandler_APIReports(t *testing.T) {
	s := NewStore(10)
	_ = s.Report(context.Background(), types.Report{Pass: 1, Reason: "no cycle"})
	_ = s.Report(context.Background(), types.Report{Pass: 2, Found: true, Source: "A"})

	srv := httptest.NewServer(Handler(s, zap.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/reports")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var got []types.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Pass)
	assert.True(t, got[0].Found)
}

func TestHandler_Options(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/reports", nil)
	rec := httptest.NewRecorder()
	Handler(NewStore(1), zap.NewNop()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandler_WebsocketPush(t *testing.T) {
	s := NewStore(10)
	srv := httptest.NewServer(Handler(s, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the handler subscribes after the upgrade; wait for it
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Report(context.Background(), types.Report{Pass: 9, Found: true, Source: "USDC"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got types.Report
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint64(9), got.Pass)
	assert.Equal(t, types.Token("USDC"), got.Source)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
