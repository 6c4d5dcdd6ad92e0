package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"runxchat/internal/chat"
	"runxchat/internal/llm"
	"runxchat/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser frontend runs on a different origin in every deployment
	// we ship; access control happens at the auth frame.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is what the websocket client sends.
type clientFrame struct {
	Type     string `json:"type"` // auth, resume, message
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content,omitempty"`
}

// serverFrame is what the gateway sends back.
type serverFrame struct {
	Type     string `json:"type"` // welcome, resumed, message, error
	Content  string `json:"content,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Replayed int    `json:"replayed,omitempty"`
}

// handleWebSocket owns one connection: authenticate, start the session,
// then loop over resume/message frames. The single read loop guarantees
// events for this session never overlap.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()

	session, ok := s.authenticateConn(ctx, conn)
	if !ok {
		return
	}

	welcome := s.handler.OnChatStart(ctx, session)
	if err := conn.WriteJSON(serverFrame{Type: "welcome", Content: welcome}); err != nil {
		return
	}

	s.connLoop(ctx, conn, session)
}

// authenticateConn expects the first frame to carry credentials. Denial
// closes the connection after a single error frame.
func (s *Server) authenticateConn(ctx context.Context, conn *websocket.Conn) (*chat.Session, bool) {
	var frame clientFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, false
	}
	if frame.Type != "auth" {
		_ = conn.WriteJSON(serverFrame{Type: "error", Content: "authentication required"})
		return nil, false
	}

	user := s.bridge.Authenticate(ctx, frame.Email, frame.Password)
	if user == nil {
		_ = conn.WriteJSON(serverFrame{Type: "error", Content: "authentication failed"})
		return nil, false
	}

	session := chat.NewSession(user, frame.ThreadID)
	s.log.Info("websocket session opened",
		zap.String("session_id", session.ID),
		zap.String("user", user.Identifier))
	return session, true
}

// connLoop processes frames until the client goes away. The session struct
// is owned here and handed to the chat handler on every call; it is never
// registered anywhere global.
func (s *Server) connLoop(ctx context.Context, conn *websocket.Conn, session *chat.Session) {
	// threadID is the persisted conversation this connection appends to.
	var threadID string

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			s.log.Debug("websocket closed", zap.String("session_id", session.ID), zap.Error(err))
			return
		}

		switch frame.Type {
		case "resume":
			session.ThreadIDToResume = frame.ThreadID
			thread := s.handler.OnChatResume(ctx, session)
			if thread == nil {
				// Failed preconditions are a silent no-op toward the user.
				continue
			}
			threadID = thread.ID
			if err := conn.WriteJSON(serverFrame{
				Type:     "resumed",
				ThreadID: thread.ID,
				Replayed: len(session.History),
			}); err != nil {
				return
			}

		case "message":
			reply := s.handler.OnMessage(ctx, session, frame.Content)
			threadID = s.persistExchange(ctx, session, threadID, frame.Content, reply)
			if err := conn.WriteJSON(serverFrame{Type: "message", Content: reply, ThreadID: threadID}); err != nil {
				return
			}

		default:
			_ = conn.WriteJSON(serverFrame{Type: "error", Content: "unknown frame type"})
		}
	}
}

// persistExchange records the user turn and, when the exchange succeeded,
// the assistant turn. The conversation thread is created lazily on the
// first message of a fresh session.
func (s *Server) persistExchange(ctx context.Context, session *chat.Session, threadID, content, reply string) string {
	if threadID == "" {
		metadata, err := store.MetadataJSON(session.State)
		if err != nil {
			metadata = nil
		}
		thread := &store.Thread{
			Name:           truncate(content, 64),
			UserIdentifier: session.User.Identifier,
			Metadata:       metadata,
		}
		if user, err := s.store.GetUserByIdentifier(ctx, session.User.Identifier); err == nil && user != nil {
			thread.UserID = &user.ID
		}
		if err := s.store.CreateThread(ctx, thread); err != nil {
			s.log.Error("failed to create thread", zap.Error(err))
			return ""
		}
		threadID = thread.ID
	}

	userStep := &store.Step{
		Name:     session.User.Identifier,
		Type:     store.StepTypeUserMessage,
		ThreadID: threadID,
		Output:   content,
	}
	if err := s.store.AppendStep(ctx, userStep); err != nil {
		s.log.Error("failed to persist user step", zap.Error(err))
	}

	// Apology and credential errors are not assistant turns; the handler
	// kept them out of the history as well.
	if len(session.History) > 0 && session.History[len(session.History)-1].Role == llm.RoleAssistant {
		assistantStep := &store.Step{
			Name:     "assistant",
			Type:     store.StepTypeAssistantMessage,
			ThreadID: threadID,
			Output:   reply,
		}
		if err := s.store.AppendStep(ctx, assistantStep); err != nil {
			s.log.Error("failed to persist assistant step", zap.Error(err))
		}
	}
	return threadID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
