package hub

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tokenflow/config"
	"tokenflow/logger"
)

// Server exposes the hub to local subscriber connections over websocket.
type Server struct {
	hub        *Hub
	cfg        config.HubConfig
	upgrader   websocket.Upgrader
	httpServer *http.Server
	log        *logger.Log
}

func NewServer(hub *Hub, cfg config.HubConfig, log *logger.Log) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Server{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Subscribers are local dashboard connections.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Run starts the subscriber endpoint and blocks until the context is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleSubscriber)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: mux,
	}

	log := s.log.WithComponent("hub_server")
	log.WithFields(logger.Fields{"address": s.cfg.Address}).Info("starting subscriber endpoint")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSubscriber(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithComponent("hub_server").WithFields(logger.Fields{"remote": r.RemoteAddr})

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("failed to upgrade subscriber connection")
		return
	}

	sub := s.hub.Attach()
	defer func() {
		s.hub.Detach(sub)
		conn.Close()
	}()

	// Writer: pump hub messages to the socket. The hub closes the channel
	// when it drops the subscriber.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for payload := range sub.Messages() {
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.WithError(err).Debug("subscriber write failed")
				return
			}
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
			time.Now().Add(time.Second))
	}()

	// Reader: subscribers send nothing meaningful, but reading is required
	// to notice closes and answer pings.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// Detach first so the writer's channel closes and it can exit.
	s.hub.Detach(sub)
	conn.Close()
	<-done
}
