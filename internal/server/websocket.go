package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/michaelbrown/runbox/internal/engine"
	"github.com/michaelbrown/runbox/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the editor runs on a different origin
	},
}

// handleTerm is the channel gateway: it binds one WebSocket connection to
// one claimed session and bridges frames to and from the execution engine.
func (s *Server) handleTerm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.deps.Log.Debugw("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Atomic claim: exactly one connection wins a token. An unknown or
	// already-claimed token closes silently — no frames, logged only.
	sess, err := s.deps.Registry.Claim(token)
	if err != nil {
		s.deps.Log.Infow("channel attach rejected", "err", err)
		return
	}

	// A token from a failed compile authorizes log retrieval, never a
	// run. Treat it like an unknown token and release the workspace.
	if !sess.OK {
		s.deps.Log.Infow("refusing to run failed compile", "token", shortToken(token))
		s.deps.Workspaces.Destroy(sess.Workspace)
		return
	}

	cols, _ := strconv.Atoi(r.URL.Query().Get("cols"))
	rows, _ := strconv.Atoi(r.URL.Query().Get("rows"))

	eng := engine.New(sess, s.deps.Sandbox, s.deps.Workspaces, engine.Config{
		Cols:        cols,
		Rows:        rows,
		MaxDuration: s.cfg.Session.MaxDuration,
	}, s.deps.Log, func(code int) {
		if err := s.deps.Store.SetExitCode(context.Background(), sess.Token, code); err != nil {
			s.deps.Log.Warnw("recording exit code failed", "token", shortToken(token), "err", err)
		}
	})

	go eng.Run()
	go s.readFrames(conn, eng)

	s.writeFrames(conn, eng.Events())
	<-eng.Done()
}

// readFrames routes incoming frames to the engine, in arrival order. Any
// read error means the client went away: the engine must then kill the
// process — no orphaned sandboxes.
func (s *Server) readFrames(conn *websocket.Conn, eng *engine.Engine) {
	defer eng.ChannelClosed()

	for {
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.deps.Log.Debugw("websocket read ended", "err", err)
			}
			return
		}

		switch f.Type {
		case protocol.FrameStdin:
			eng.Write(f.Data)
		case protocol.FrameResize:
			eng.Resize(f.Cols, f.Rows)
		case protocol.FrameStop:
			eng.Stop()
		default:
			// Unknown frames are ignored, not fatal.
		}
	}
}

// wsWriteTimeout bounds each frame write so a connected-but-stalled client
// cannot hold the relay through transport backpressure.
var wsWriteTimeout = 10 * time.Second

// writeFrames serializes engine events onto the connection. It keeps
// draining after a write failure or deadline so the engine never stalls on
// a dead or stalled client, and it closes the connection after the
// terminal exit frame.
func (s *Server) writeFrames(conn *websocket.Conn, events <-chan protocol.Frame) {
	var dead bool

	for f := range events {
		if dead {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(f); err != nil {
			dead = true
			continue
		}
		if f.Type == protocol.FrameExit {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
	}
}
