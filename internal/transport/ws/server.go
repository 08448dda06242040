package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/metrics"
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	// worldSendTimeout bounds how long a session waits on a full world queue.
	worldSendTimeout = 2 * time.Second
	// lateJoinWait bounds how long a timed-out join is watched for a late welcome.
	lateJoinWait = 30 * time.Second
)

type Server struct {
	world     *world.World
	validator *protocol.Validator
	metrics   *metrics.Metrics
	log       zerolog.Logger

	upgrader websocket.Upgrader
}

// NewServer builds the agent websocket endpoint. m may be nil.
func NewServer(w *world.World, v *protocol.Validator, m *metrics.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		world:     w,
		validator: v,
		metrics:   m,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID := uuid.NewString()
		log := s.log.With().Str("session_id", sessionID).Logger()

		agentID, out := s.handshake(conn, sessionID, log)
		if agentID == "" {
			return
		}
		log = log.With().Str("agent_id", agentID).Logger()
		log.Info().Str("remote", r.RemoteAddr).Msg("session started")
		if s.metrics != nil {
			s.metrics.SessionsTotal.Inc()
			s.metrics.Sessions.Inc()
			defer s.metrics.Sessions.Dec()
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			act, code, reason := s.decodeAct(msg)
			if code != "" {
				s.reject(out, code, reason)
				continue
			}
			if !sendWorld(ctx, s.world.Inbox(), world.ActionEnvelope{AgentID: agentID, Act: act}) {
				s.reject(out, protocol.ErrWorldBusy, "world inbox full")
			}
		}

		// Cleanup.
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), worldSendTimeout)
		defer leaveCancel()
		if !sendWorld(leaveCtx, s.world.Leave(), world.LeaveRequest{AgentID: agentID, Out: out}) {
			log.Warn().Msg("leave dropped: world queue full")
		}
		log.Info().Msg("session ended")
	}
}

// decodeAct validates an inbound frame. A non-empty code means the frame
// was rejected.
func (s *Server) decodeAct(msg []byte) (protocol.ActMsg, string, string) {
	var act protocol.ActMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return act, protocol.ErrProtoBadRequest, "invalid json"
	}
	if base.Type != protocol.TypeAct {
		return act, protocol.ErrProtoBadRequest, "expected ACT"
	}
	if s.validator != nil {
		if err := s.validator.Validate(protocol.TypeAct, msg); err != nil {
			return act, protocol.ErrProtoBadRequest, err.Error()
		}
	}
	if err := json.Unmarshal(msg, &act); err != nil {
		return act, protocol.ErrProtoBadRequest, err.Error()
	}
	if act.ProtocolVersion != protocol.Version {
		return act, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	return act, "", ""
}

func (s *Server) reject(out chan []byte, code, message string) {
	if s.metrics != nil {
		s.metrics.RejectedTotal.WithLabelValues(code).Inc()
	}
	b, err := json.Marshal(protocol.NewError(code, message))
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn, sessionID string, log zerolog.Logger) (agentID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return "", nil
	}
	if s.validator != nil {
		if err := s.validator.Validate(protocol.TypeHello, msg); err != nil {
			closeWith(conn, protocol.ErrProtoBadRequest, err.Error())
			return "", nil
		}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, protocol.ErrProtoBadRequest, "invalid HELLO")
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, protocol.ErrProtoBadRequest, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	ctx, cancel := context.WithTimeout(context.Background(), worldSendTimeout)
	defer cancel()

	// Optional: resume an existing agent (reconnect).
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}

	var resp world.JoinResponse
	if resumeToken != "" {
		respCh := make(chan world.JoinResponse, 1)
		if sendWorld(ctx, s.world.Attach(), world.AttachRequest{ResumeToken: resumeToken, Out: out, Resp: respCh}) {
			resp = s.awaitJoin(ctx, respCh, out, log)
		}
		if resp.Err != "" {
			log.Info().Str("code", resp.Err).Msg("resume refused, joining fresh")
			resp = world.JoinResponse{}
		}
	}
	if resp.Welcome.AgentID == "" {
		respCh := make(chan world.JoinResponse, 1)
		// Joins wait for the next tick boundary.
		joinCtx, joinCancel := context.WithTimeout(context.Background(), handshakeTimeout)
		defer joinCancel()
		if !sendWorld(joinCtx, s.world.Join(), world.JoinRequest{Name: hello.AgentName, Out: out, Resp: respCh}) {
			closeWith(conn, protocol.ErrWorldBusy, "join queue full")
			return "", nil
		}
		resp = s.awaitJoin(joinCtx, respCh, out, log)
	}
	if resp.Err != "" || resp.Welcome.AgentID == "" {
		code := resp.Err
		if code == "" {
			code = protocol.ErrWorldBusy
		}
		closeWith(conn, code, "join refused")
		return "", nil
	}

	resp.Welcome.SessionID = sessionID
	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.AgentID, out
}

// awaitJoin waits for the world's answer. On timeout the request is still
// queued, so a late welcome is released with a Leave for out.
func (s *Server) awaitJoin(ctx context.Context, ch <-chan world.JoinResponse, out chan []byte, log zerolog.Logger) world.JoinResponse {
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		go s.releaseLateJoin(ch, out, log)
		return world.JoinResponse{Err: protocol.ErrWorldBusy}
	}
}

func (s *Server) releaseLateJoin(ch <-chan world.JoinResponse, out chan []byte, log zerolog.Logger) {
	var r world.JoinResponse
	select {
	case r = <-ch:
	case <-time.After(lateJoinWait):
		return
	}
	if r.Err != "" || r.Welcome.AgentID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), worldSendTimeout)
	defer cancel()
	if sendWorld(ctx, s.world.Leave(), world.LeaveRequest{AgentID: r.Welcome.AgentID, Out: out}) {
		log.Info().Str("agent_id", r.Welcome.AgentID).Msg("released late join")
	}
}

func sendWorld[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// closeWith sends an ERROR frame and a policy close.
func closeWith(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.NewError(code, message))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
