package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"worleybiomes.ai/internal/field/tuning"
	"worleybiomes.ai/internal/field/worley"
	qlog "worleybiomes.ai/internal/persistence/log"
	"worleybiomes.ai/internal/persistence/preset"
	"worleybiomes.ai/internal/protocol"
)

// QueryLog receives one entry per query and per config change.
type QueryLog interface {
	WriteQuery(e qlog.QueryLogEntry) error
	WriteConfig(e qlog.ConfigLogEntry) error
}

type Server struct {
	rt    *Runtime
	store preset.Store // nil disables SAVE_PRESET/LOAD_PRESET
	qlog  QueryLog     // optional
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(rt *Runtime, store preset.Store, ql QueryLog, logger *log.Logger) *Server {
	return &Server{
		rt:    rt,
		store: store,
		qlog:  ql,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

type session struct {
	id  string
	out chan []byte
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if !s.handle(ctx, sess, msg) {
				break
			}
		}
		cancel()
		<-done
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	sess := &session{id: uuid.NewString(), out: make(chan []byte, maxQ)}

	_, digest := s.rt.Current()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		ConfigDigest:    digest,
		MaxPoints:       protocol.MaxSamplePoints,
		MaxGridSide:     protocol.MaxGridSide,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	name := hello.ClientName
	if name == "" {
		name = "client"
	}
	s.log.Printf("session %s opened (%s)", sess.id, name)
	return sess
}

// handle processes one request. It returns false once the connection is gone.
func (s *Server) handle(ctx context.Context, sess *session, msg []byte) bool {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.sendError(ctx, sess, "", protocol.ErrProtoBadRequest, "malformed message")
	}
	reqID := strings.TrimSpace(base.ReqID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	if base.ProtocolVersion != protocol.Version {
		return s.sendError(ctx, sess, reqID, protocol.ErrProtoVersion, "bad protocol_version")
	}

	switch base.Type {
	case protocol.TypeSample:
		var m protocol.SampleMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
		}
		return s.handleSample(ctx, sess, reqID, m)
	case protocol.TypeSampleGrid:
		var m protocol.SampleGridMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
		}
		return s.handleSampleGrid(ctx, sess, reqID, m)
	case protocol.TypeConfigure:
		var m protocol.ConfigureMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
		}
		rec, err := tuning.DecodeJSON(m.Config)
		if err != nil {
			return s.sendError(ctx, sess, reqID, protocol.ErrBadConfig, err.Error())
		}
		return s.applyConfig(ctx, sess, reqID, rec, "configure")
	case protocol.TypeGetConfig:
		return s.sendConfig(ctx, sess, reqID)
	case protocol.TypeSavePreset:
		var m protocol.PresetMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
		}
		return s.handleSavePreset(ctx, sess, reqID, m.Name)
	case protocol.TypeLoadPreset:
		var m protocol.PresetMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
		}
		return s.handleLoadPreset(ctx, sess, reqID, m.Name)
	default:
		return s.sendError(ctx, sess, reqID, protocol.ErrProtoBadRequest, fmt.Sprintf("unknown type %q", base.Type))
	}
}

func (s *Server) handleSample(ctx context.Context, sess *session, reqID string, m protocol.SampleMsg) bool {
	if len(m.Points) == 0 {
		return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, "no points")
	}
	if len(m.Points) > protocol.MaxSamplePoints {
		return s.sendError(ctx, sess, reqID, protocol.ErrTooLarge, fmt.Sprintf("%d points exceeds %d", len(m.Points), protocol.MaxSamplePoints))
	}
	start := time.Now()
	res, digest, err := s.rt.Sample(m.Seed, m.Points)
	s.logQuery(sess, reqID, protocol.TypeSample, m.Seed, len(m.Points), digest, start, err)
	if err != nil {
		return s.sendQueryError(ctx, sess, reqID, err)
	}
	return s.send(ctx, sess, protocol.SampleResultMsg{
		Type:            protocol.TypeSampleResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		ConfigDigest:    digest,
		Results:         toWire(res),
	})
}

func (s *Server) handleSampleGrid(ctx context.Context, sess *session, reqID string, m protocol.SampleGridMsg) bool {
	if m.Width > protocol.MaxGridSide || m.Height > protocol.MaxGridSide {
		return s.sendError(ctx, sess, reqID, protocol.ErrTooLarge, fmt.Sprintf("grid %dx%d exceeds %d per side", m.Width, m.Height, protocol.MaxGridSide))
	}
	g := worley.Grid{X0: m.X0, Z0: m.Z0, Step: m.Step, Width: m.Width, Height: m.Height}
	if err := g.Validate(); err != nil {
		return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
	}
	start := time.Now()
	res, digest, err := s.rt.SampleGrid(m.Seed, g)
	s.logQuery(sess, reqID, protocol.TypeSampleGrid, m.Seed, g.Width*g.Height, digest, start, err)
	if err != nil {
		return s.sendQueryError(ctx, sess, reqID, err)
	}
	return s.send(ctx, sess, protocol.SampleResultMsg{
		Type:            protocol.TypeSampleResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		ConfigDigest:    digest,
		Width:           g.Width,
		Height:          g.Height,
		Results:         toWire(res),
	})
}

func (s *Server) applyConfig(ctx context.Context, sess *session, reqID string, rec tuning.Record, source string) bool {
	digest, err := s.rt.Apply(rec)
	if err != nil {
		return s.sendError(ctx, sess, reqID, protocol.ErrBadConfig, err.Error())
	}
	s.log.Printf("session %s: config %s (%s)", sess.id, shortDigest(digest), source)
	if s.qlog != nil {
		if err := s.qlog.WriteConfig(qlog.ConfigLogEntry{
			Time:   time.Now().UTC(),
			Conn:   sess.id,
			ReqID:  reqID,
			Source: source,
			Digest: digest,
		}); err != nil {
			s.log.Printf("config log: %v", err)
		}
	}
	return s.sendConfig(ctx, sess, reqID)
}

func (s *Server) sendConfig(ctx context.Context, sess *session, reqID string) bool {
	rec, digest := s.rt.Current()
	b, err := rec.EncodeJSON()
	if err != nil {
		return s.sendError(ctx, sess, reqID, protocol.ErrInternal, err.Error())
	}
	return s.send(ctx, sess, protocol.ConfigMsg{
		Type:            protocol.TypeConfig,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Digest:          digest,
		Config:          b,
	})
}

func (s *Server) handleSavePreset(ctx context.Context, sess *session, reqID, name string) bool {
	if s.store == nil {
		return s.sendError(ctx, sess, reqID, protocol.ErrNoStore, "preset store disabled")
	}
	rec, _ := s.rt.Current()
	p, err := preset.New(name, rec)
	if err != nil {
		return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
	}
	if err := s.store.Save(ctx, p); err != nil {
		s.log.Printf("save preset %q: %v", p.Header.Name, err)
		return s.sendError(ctx, sess, reqID, protocol.ErrInternal, "save failed")
	}
	return s.send(ctx, sess, protocol.PresetSavedMsg{
		Type:            protocol.TypePresetSaved,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Name:            p.Header.Name,
		ID:              p.Header.ID,
		Digest:          p.Header.Digest,
	})
}

func (s *Server) handleLoadPreset(ctx context.Context, sess *session, reqID, name string) bool {
	if s.store == nil {
		return s.sendError(ctx, sess, reqID, protocol.ErrNoStore, "preset store disabled")
	}
	p, err := s.store.Load(ctx, strings.TrimSpace(name))
	if errors.Is(err, preset.ErrNotFound) {
		return s.sendError(ctx, sess, reqID, protocol.ErrNotFound, err.Error())
	}
	if err != nil {
		s.log.Printf("load preset %q: %v", name, err)
		return s.sendError(ctx, sess, reqID, protocol.ErrInternal, "load failed")
	}
	return s.applyConfig(ctx, sess, reqID, p.Config, "preset:"+p.Header.Name)
}

func (s *Server) logQuery(sess *session, reqID, kind string, seed uint64, points int, digest string, start time.Time, qerr error) {
	if s.qlog == nil {
		return
	}
	e := qlog.QueryLogEntry{
		Time:         start.UTC(),
		Conn:         sess.id,
		ReqID:        reqID,
		Kind:         kind,
		Seed:         seed,
		Points:       points,
		ConfigDigest: digest,
		DurationUS:   time.Since(start).Microseconds(),
	}
	if qerr != nil {
		e.Error = qerr.Error()
	}
	if err := s.qlog.WriteQuery(e); err != nil {
		s.log.Printf("query log: %v", err)
	}
}

func (s *Server) sendQueryError(ctx context.Context, sess *session, reqID string, err error) bool {
	var fatal *FatalQueryError
	if errors.As(err, &fatal) {
		s.log.Printf("session %s req %s: %v", sess.id, reqID, err)
		return s.sendError(ctx, sess, reqID, protocol.ErrInternal, err.Error())
	}
	return s.sendError(ctx, sess, reqID, protocol.ErrBadRequest, err.Error())
}

func (s *Server) sendError(ctx context.Context, sess *session, reqID, code, message string) bool {
	return s.send(ctx, sess, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Code:            code,
		Message:         message,
	})
}

func (s *Server) send(ctx context.Context, sess *session, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("marshal %T: %v", v, err)
		return true
	}
	select {
	case sess.out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func toWire(res [][]worley.Weighted[string]) [][]protocol.WeightedBiome {
	out := make([][]protocol.WeightedBiome, len(res))
	for i, row := range res {
		out[i] = make([]protocol.WeightedBiome, len(row))
		for j, w := range row {
			out[i][j] = protocol.WeightedBiome{Weight: w.Weight, Biome: w.Biome}
		}
	}
	return out
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
