package dash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
)

// Store keeps the last N pass reports and pushes each new one to websocket
// subscribers. It is a report.Reporter.
type Store struct {
	mu      sync.RWMutex
	ring    []types.Report
	next    int
	full    bool
	clients map[chan types.Report]struct{}
}

func NewStore(history int) *Store {
	if history <= 0 {
		history = 1
	}
	return &Store{
		ring:    make([]types.Report, history),
		clients: make(map[chan types.Report]struct{}),
	}
}

func (s *Store) Report(_ context.Context, r types.Report) error {
	s.mu.Lock()
	s.ring[s.next] = r
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	for ch := range s.clients {
		// медленный клиент пропускает отчёт
		select {
		case ch <- r:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

// List returns stored reports, newest first.
func (s *Store) List() []types.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.next
	if s.full {
		n = len(s.ring)
	}
	out := make([]types.Report, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, s.ring[(s.next-i+len(s.ring))%len(s.ring)])
	}
	return out
}

func (s *Store) subscribe() chan types.Report {
	ch := make(chan types.Report, 16)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Store) unsubscribe(ch chan types.Report) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handler serves /api/reports (JSON list) and /ws (live reports).
func Handler(s *Store, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reports", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.List())
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("dash: upgrade failed", zap.Error(err))
			return
		}
		ch := s.subscribe()
		defer func() {
			s.unsubscribe(ch)
			_ = conn.Close()
		}()

		// читаем только для обнаружения закрытия
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case rep := <-ch:
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(rep); err != nil {
					return
				}
			}
		}
	})
	return withCORS(mux)
}

// StartHTTP serves Handler on addr until ctx is done.
func StartHTTP(ctx context.Context, s *Store, addr string, log *zap.Logger) {
	if addr == "" {
		log.Info("dash disabled: empty addr")
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(s, log),
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() { <-ctx.Done(); _ = srv.Close() }()

	log.Info("dash listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("dash http server error", zap.Error(err))
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
