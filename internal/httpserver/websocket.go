package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/skobkin/systop-web/internal/api"
	"github.com/skobkin/systop-web/internal/procscan"
	"github.com/skobkin/systop-web/internal/sampler"
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	reqLogger := s.loggerFromContext(r.Context())
	if !allowGet(w, r) {
		return
	}

	if !s.reserveWS() {
		reqLogger.Warn("websocket rejected", "reason", "capacity")
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}
	defer s.releaseWS()

	opts := &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		reqLogger.Warn("websocket accept failed", "err", err)
		return
	}

	connID := s.wsConnIDs.Add(1)
	s.wsTotal.Add(1)
	logger := reqLogger.With("ws_id", connID)
	defer closeWebsocket(logger, conn)

	outbound := newWSOutbound(wsSendQueueSize, &s.wsDropped)
	ctx, cancel := context.WithCancel(r.Context())

	writerDone := make(chan struct{})
	go s.wsWriter(ctx, conn, outbound, cancel, logger, writerDone)

	streams := &wsStreams{logger: logger}
	defer func() {
		streams.stop()
		outbound.close()
		cancel()
		<-writerDone
	}()

	if !s.enqueueMessage(outbound, s.helloMessage(), logger) {
		return
	}

	if s.sampler != nil {
		streams.statsCh, streams.statsCancel = s.sampler.Subscribe()
	} else {
		_ = s.enqueueError(outbound, "metrics sampler unavailable", logger)
	}
	if err := streams.setProcs(s.proc, true); err != nil && !errors.Is(err, procscan.ErrDisabled) {
		logger.Warn("failed to subscribe process scanner", "err", err)
	}

	messageCh := make(chan []byte, 8)
	readErrCh := make(chan error, 1)
	go s.readMessages(ctx, conn, messageCh, readErrCh)
	go s.wsHeartbeat(ctx, conn, cancel, logger)

	for {
		select {
		case sample, ok := <-streams.statsCh:
			if !ok {
				streams.statsCh = nil
				continue
			}
			if !s.enqueueMessage(outbound, api.NewStatsMessage(sample), logger) {
				return
			}
		case snapshot, ok := <-streams.procCh:
			if !ok {
				streams.procCh = nil
				continue
			}
			if !s.enqueueMessage(outbound, api.NewProcsMessage(snapshot), logger) {
				return
			}
		case data, ok := <-messageCh:
			if !ok {
				messageCh = nil
				continue
			}
			if err := s.handleClientMessage(outbound, data, streams, logger); err != nil {
				logger.Warn("client message handling error", "err", err)
				return
			}
		case err := <-readErrCh:
			if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Warn("websocket read error", "err", err)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) helloMessage() api.HelloMessage {
	var (
		host           api.HostInfo
		intervalMS     = int(s.cfg.SampleInterval / time.Millisecond)
		procIntervalMS int
	)
	if s.sampler != nil {
		intervalMS = int(s.sampler.Interval() / time.Millisecond)
		host.ClockTicks = s.sampler.ClockTicks()
		if sample, ok := s.sampler.Latest(); ok {
			host.OSName = sample.System.OSName
			host.Kernel = sample.System.Kernel
		}
	}
	procsEnabled := s.proc != nil && s.proc.Enabled()
	if procsEnabled {
		procIntervalMS = int(s.proc.Interval() / time.Millisecond)
	}

	features := map[string]bool{
		"procs":       procsEnabled,
		"prometheus":  s.cfg.EnablePrometheus,
		"proc_lookup": s.proc != nil,
	}
	return api.NewHelloMessage(intervalMS, procIntervalMS, host, features)
}

// wsStreams holds the subscriptions owned by one connection. It is only
// touched from the connection's main loop.
type wsStreams struct {
	logger      *slog.Logger
	statsCh     <-chan sampler.Sample
	statsCancel func()
	procCh      <-chan procscan.Snapshot
	procCancel  func()
}

func (st *wsStreams) setProcs(proc *procscan.Manager, enabled bool) error {
	if !enabled {
		if st.procCancel != nil {
			st.procCancel()
			st.procCancel = nil
			st.procCh = nil
			st.logger.Debug("ws procs stream paused")
		}
		return nil
	}
	if st.procCancel != nil {
		return nil
	}
	if proc == nil {
		return procscan.ErrDisabled
	}
	ch, cancel, err := proc.Subscribe()
	if err != nil {
		return err
	}
	st.procCh = ch
	st.procCancel = cancel
	st.logger.Debug("ws procs stream active")
	return nil
}

func (st *wsStreams) stop() {
	if st.statsCancel != nil {
		st.statsCancel()
		st.statsCancel = nil
	}
	_ = st.setProcs(nil, false)
}

func (s *Server) readMessages(ctx context.Context, conn *websocket.Conn, out chan<- []byte, errCh chan<- error) {
	defer close(out)
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}

// wsHeartbeat pings the peer every half read timeout. A missed pong cancels
// the connection. Pongs are only processed while readMessages is running.
func (s *Server) wsHeartbeat(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) {
	period := s.cfg.WS.ReadTimeout / 2
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, period)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() == nil {
					logger.Info("websocket peer unresponsive", "err", err)
				}
				cancel()
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(outbound *wsOutbound, data []byte, streams *wsStreams, logger *slog.Logger) error {
	var envelope api.ClientMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Debug("invalid client message", "err", err)
		return nil
	}

	switch envelope.Type {
	case api.TypeSubscribe:
		var msg api.SubscribeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if !s.enqueueError(outbound, "invalid subscribe payload", logger) {
				return fmt.Errorf("failed to enqueue subscribe error")
			}
			return nil
		}
		if msg.Procs == nil {
			return nil
		}
		if err := streams.setProcs(s.proc, *msg.Procs); err != nil {
			if !s.enqueueError(outbound, err.Error(), logger) {
				return fmt.Errorf("failed to enqueue subscription error")
			}
		}
	case api.TypePing:
		if !s.enqueueMessage(outbound, api.PongMessage{Type: api.TypePong}, logger) {
			return fmt.Errorf("failed to enqueue pong response")
		}
	default:
		logger.Debug("unknown message type", "type", envelope.Type)
	}
	return nil
}

func (s *Server) wsWriter(ctx context.Context, conn *websocket.Conn, outbound *wsOutbound, cancel context.CancelFunc, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound.channel():
			if !ok {
				return
			}
			if err := s.writeRaw(ctx, conn, msg); err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					logger.Warn("websocket write failed", "err", err)
				}
				cancel()
				return
			}
			s.wsSent.Add(1)
		}
	}
}

func (s *Server) writeRaw(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.WS.WriteTimeout > 0 {
		writeCtx, cancel = context.WithTimeout(ctx, s.cfg.WS.WriteTimeout)
	}
	if cancel != nil {
		defer cancel()
	}
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) enqueueMessage(outbound *wsOutbound, payload any, logger *slog.Logger) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal websocket payload", "err", err)
		return false
	}
	if !outbound.enqueue(data) {
		logger.Warn("websocket outbound queue unavailable")
		return false
	}
	return true
}

func (s *Server) enqueueError(outbound *wsOutbound, msg string, logger *slog.Logger) bool {
	return s.enqueueMessage(outbound, api.NewErrorMessage(msg), logger)
}

func (s *Server) reserveWS() bool {
	if s.maxWSClients <= 0 {
		s.wsActive.Add(1)
		return true
	}

	for {
		current := s.wsActive.Load()
		if current >= s.maxWSClients {
			s.wsRejected.Add(1)
			return false
		}
		if s.wsActive.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (s *Server) releaseWS() {
	s.wsActive.Add(-1)
}

func originPatterns(origins []string) []string {
	for _, origin := range origins {
		if origin == "*" {
			return []string{"*"}
		}
	}
	dst := make([]string, len(origins))
	copy(dst, origins)
	return dst
}

func closeWebsocket(logger *slog.Logger, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		logger.Debug("websocket close failed", "err", err)
	}
}

// wsOutbound is a drop-oldest send queue. Enqueue and close share a mutex so
// a send never races the channel close.
type wsOutbound struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
	drops  *atomic.Uint64
}

func newWSOutbound(size int, dropCounter *atomic.Uint64) *wsOutbound {
	if size <= 0 {
		size = 1
	}
	return &wsOutbound{
		ch:    make(chan []byte, size),
		drops: dropCounter,
	}
}

func (o *wsOutbound) enqueue(msg []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		o.countDrop()
		return false
	}

	select {
	case o.ch <- msg:
		return true
	default:
	}

	select {
	case <-o.ch:
		o.countDrop()
	default:
	}

	select {
	case o.ch <- msg:
		return true
	default:
		o.countDrop()
		return false
	}
}

func (o *wsOutbound) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

func (o *wsOutbound) channel() <-chan []byte {
	return o.ch
}

func (o *wsOutbound) countDrop() {
	if o.drops != nil {
		o.drops.Add(1)
	}
}
