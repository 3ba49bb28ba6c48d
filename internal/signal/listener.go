package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Enqueue hands a validated signal to the worker pool. False means the
// queue is full and the signal was dropped.
type Enqueue func(Signal) bool

// Listener accepts signals over a POST webhook and a websocket stream.
type Listener struct {
	srv      *http.Server
	enqueue  Enqueue
	upgrader websocket.Upgrader
}

func NewListener(addr string, enqueue Enqueue) *Listener {
	l := &Listener{
		enqueue: enqueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/transaction", l.handleWebhook)
	mux.HandleFunc("/ws", l.handleWS)

	l.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return l
}

// Start serves until Stop is called.
func (l *Listener) Start() {
	go func() {
		log.Info().Str("addr", l.srv.Addr).Msg("📡 Signal listener started")
		if err := l.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Signal listener failed")
		}
	}()
}

// Stop drains in-flight requests and shuts the listener down.
func (l *Listener) Stop(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

func (l *Listener) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sig Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := sig.Validate(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Rejected malformed signal")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if !l.enqueue(sig) {
		log.Warn().Str("tx", sig.TxHash).Msg("⚠️ Signal queue full, dropping")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue full"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
}

// handleWS streams signals over a websocket for feeds that hold a
// connection open instead of posting one request per alert.
func (l *Listener) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("📡 Websocket feed connected")

	for {
		var sig Signal
		if err := conn.ReadJSON(&sig); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("⚠️ Websocket feed dropped")
			}
			return
		}
		if err := sig.Validate(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Rejected malformed signal")
			continue
		}
		if !l.enqueue(sig) {
			log.Warn().Str("tx", sig.TxHash).Msg("⚠️ Signal queue full, dropping")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
