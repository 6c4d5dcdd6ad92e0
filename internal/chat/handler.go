package chat

import (
	"context"
	"maps"
	"os"

	"go.uber.org/zap"

	"runxchat/internal/llm"
	"runxchat/internal/store"
)

// Tracer receives domain trace events ("thread_resumed" and friends).
type Tracer func(event string)

// Handler implements the conversation lifecycle. The connection gateway
// invokes its methods sequentially for a given session.
type Handler struct {
	store  *store.Store
	client llm.Client
	log    *zap.Logger
	trace  Tracer

	// credential reports the LLM key at message time; when it comes back
	// empty the user gets a fixed error instead of a model call.
	credential func() string
}

// ConfigCredential builds the per-message credential lookup: the configured
// key when one is set, the environment otherwise.
func ConfigCredential(apiKey string) func() string {
	return func() string {
		if apiKey != "" {
			return apiKey
		}
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GEMINI_API_KEY")
	}
}

// Option tweaks handler construction.
type Option func(*Handler)

// WithTracer replaces the default (log-only) trace sink.
func WithTracer(t Tracer) Option {
	return func(h *Handler) { h.trace = t }
}

// WithCredentialCheck replaces the per-message credential lookup.
func WithCredentialCheck(f func() string) Option {
	return func(h *Handler) { h.credential = f }
}

// NewHandler wires the conversation core.
func NewHandler(st *store.Store, client llm.Client, log *zap.Logger, opts ...Option) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		store:  st,
		client: client,
		log:    log.Named("chat"),
	}
	h.trace = func(event string) {
		h.log.Debug("trace event", zap.String("event", event))
	}
	h.credential = ConfigCredential("")
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnChatStart initializes the session and runs the observational health
// checks. The welcome message is returned regardless of probe outcomes.
func (h *Handler) OnChatStart(ctx context.Context, s *Session) string {
	s.ResetHistory()
	h.log.Info("new chat session started", zap.String("session_id", s.ID))

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.log.Error("health check failed", zap.Error(err))
		} else {
			h.log.Info("database connection verified on startup")
		}
	}
	if h.credential() != "" {
		h.log.Info("LLM API key verified")
	} else {
		h.log.Warn("LLM API key missing")
	}

	return WelcomeMessage
}

// OnChatResume hydrates the session from its persisted thread and rebuilds
// the turn history. Returns the loaded thread, or nil when any resume
// precondition fails.
func (h *Handler) OnChatResume(ctx context.Context, s *Session) *store.Thread {
	thread := h.ResumeThread(ctx, s)
	if thread == nil {
		return nil
	}
	h.ReplayThread(s, thread)
	return thread
}

// ResumeThread loads the thread named by the session and copies its
// normalized metadata into session state. Every failed precondition is a
// silent no-op: no error, no partial hydration.
func (h *Handler) ResumeThread(ctx context.Context, s *Session) *store.Thread {
	if h.store == nil || s == nil || s.User == nil || s.ThreadIDToResume == "" {
		return nil
	}

	thread, err := h.store.GetThread(ctx, s.ThreadIDToResume)
	if err != nil {
		h.log.Error("failed to load thread for resume", zap.Error(err))
		return nil
	}
	if thread == nil {
		return nil
	}
	if thread.UserIdentifier != s.User.Identifier {
		return nil
	}

	metadata, err := store.NormalizeMetadata(thread.Metadata)
	if err != nil {
		h.log.Warn("failed to parse thread metadata", zap.Error(err))
	}
	h.log.Info("resuming thread",
		zap.String("session_id", s.ID),
		zap.String("thread_id", thread.ID))

	// Shallow copy: later session mutation must not touch the loaded record.
	s.State = maps.Clone(metadata)

	if profile, ok := metadata["chat_profile"].(string); ok && profile != "" {
		s.ChatProfile = profile
	}
	if settings, ok := metadata["chat_settings"].(map[string]any); ok && len(settings) > 0 {
		s.ChatSettings = settings
	}

	h.trace("thread_resumed")
	return thread
}

// ReplayThread rebuilds the turn history from the thread's steps in stored
// order. Only user and assistant messages become turns; every other step
// type (tool calls, notes, system steps) is skipped.
func (h *Handler) ReplayThread(s *Session, thread *store.Thread) {
	s.ResetHistory()

	replayed := 0
	for _, step := range thread.Steps {
		switch step.Type {
		case store.StepTypeUserMessage:
			s.AppendTurn(llm.RoleUser, step.Output)
			replayed++
		case store.StepTypeAssistantMessage:
			s.AppendTurn(llm.RoleAssistant, step.Output)
			replayed++
		}
	}

	h.log.Info("chat resumed",
		zap.String("thread_id", thread.ID),
		zap.Int("previous_messages", replayed))
}

// OnMessage runs one exchange: append the user turn, guarantee a system
// turn, call the model. On any model failure the history keeps only the
// user's turn and the caller gets the fixed apology.
func (h *Handler) OnMessage(ctx context.Context, s *Session, content string) string {
	s.AppendTurn(llm.RoleUser, content)
	h.log.Info("received user message",
		zap.String("session_id", s.ID),
		zap.Int("content_len", len(content)))

	// Checked every message, not only the first: a system turn removed by
	// other logic gets reinserted at the front (possibly out of original
	// position; accepted).
	if !s.HasSystemTurn() {
		s.InsertSystemTurn(SystemPrompt)
		h.log.Info("added system prompt to chat history")
	}

	if h.credential() == "" {
		h.log.Error("LLM API key not set")
		return CredentialErrorMessage
	}

	reply, err := h.client.ChatCompletion(ctx, s.History)
	if err != nil {
		h.log.Error("LLM request failed", zap.Error(err))
		return ApologyMessage
	}

	s.AppendTurn(llm.RoleAssistant, reply)
	h.log.Info("received model reply", zap.Int("reply_len", len(reply)))
	return reply
}
