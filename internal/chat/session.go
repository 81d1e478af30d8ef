// Package chat manages a single assistant conversation.
//
// Send appends the user's turn and a pending assistant placeholder, then
// issues one request. The reply replaces the placeholder at the same
// index. Only one reply may be pending at a time. Reset retires any
// in-flight request, so a reply that arrives afterwards is dropped.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/clock"
	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
	"github.com/abelbrown/skywatch/internal/pubsub"
	"github.com/abelbrown/skywatch/internal/supersede"
)

var (
	// ErrBusy is returned by Send while a reply is pending.
	ErrBusy = errors.New("chat: a reply is still pending")
	// ErrEmpty is returned by Send for blank input.
	ErrEmpty = errors.New("chat: empty message")
)

// DefaultFallback replaces a reply that failed.
const DefaultFallback = "Sorry, I encountered an error. Please try again."

const (
	replySlot      = "reply"
	suggestionSlot = "suggestions"
)

// Role of a turn's author.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

// Status of a turn. User turns are always Fulfilled.
type Status string

const (
	Pending   Status = "pending"
	Fulfilled Status = "fulfilled"
	Errored   Status = "errored"
)

// Turn is one message in the conversation.
type Turn struct {
	Role      Role
	Content   string
	Citations []api.Citation
	Status    Status
	At        time.Time
}

// SessionSnapshot is an immutable view of the session.
type SessionSnapshot struct {
	ID             string // empty until the first Send
	ConversationID string // as assigned by the backend
	Turns          []Turn
	PendingIndex   int // -1 when nothing is pending
	Citations      []api.Citation
	Suggestions    []string
}

// Busy reports whether a reply is pending.
func (s SessionSnapshot) Busy() bool { return s.PendingIndex >= 0 }

// Backend is the conversational endpoint.
type Backend interface {
	Chat(ctx context.Context, req api.ChatRequest) (api.ChatReply, error)
	ChatSuggestions(ctx context.Context) ([]string, error)
}

// Options configures a Session.
type Options struct {
	Fallback string
	// Strict panics on invariant violations such as Send while busy.
	Strict bool
	Clock  clock.Clock
}

// Session owns the conversation. All methods must be called on the loop.
type Session struct {
	backend  Backend
	replies  *supersede.Controller[api.ChatReply]
	suggests *supersede.Controller[[]string]
	clock    clock.Clock
	fallback string
	strict   bool

	id             string
	conversationID string
	turns          []Turn
	pending        int
	suggestions    []string

	changed pubsub.Topic[SessionSnapshot]
	log     logging.Logger
}

// NewSession creates an empty session.
func NewSession(l *loop.Loop, backend Backend, opts Options) *Session {
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Session{
		backend:  backend,
		replies:  supersede.New[api.ChatReply](l, "chat"),
		suggests: supersede.New[[]string](l, "chat.suggestions"),
		clock:    opts.Clock,
		fallback: opts.Fallback,
		strict:   opts.Strict,
		pending:  -1,
		log:      logging.WithPrefix("chat"),
	}
}

// Send submits a user message. It returns ErrBusy while a reply is
// pending and ErrEmpty for blank text.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}
	if s.pending >= 0 {
		if s.strict {
			panic(fmt.Sprintf("chat: Send while turn %d is pending", s.pending))
		}
		return ErrBusy
	}
	if s.id == "" {
		s.id = uuid.NewString()
		s.log.Info("session started", "session", s.id)
	}

	history := make([]api.ChatMessage, 0, len(s.turns))
	for _, t := range s.turns {
		history = append(history, api.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	req := api.ChatRequest{Query: text, ConversationHistory: history}

	now := s.clock.Now()
	turns := make([]Turn, len(s.turns), len(s.turns)+2)
	copy(turns, s.turns)
	turns = append(turns,
		Turn{Role: User, Content: text, Status: Fulfilled, At: now},
		Turn{Role: Assistant, Status: Pending, At: now},
	)
	s.turns = turns
	s.pending = len(turns) - 1
	s.publish()

	s.log.Debug("sending", "session", s.id, "history", len(history))
	s.replies.Dispatch(replySlot, func(ctx context.Context) (api.ChatReply, error) {
		return s.backend.Chat(ctx, req)
	}, s.complete)
	return nil
}

func (s *Session) complete(reply api.ChatReply, err error) {
	idx := s.pending
	if idx < 0 || idx != len(s.turns)-1 {
		if s.strict {
			panic(fmt.Sprintf("chat: reply for pending index %d with %d turns", idx, len(s.turns)))
		}
		s.log.Error("reply arrived without a pending turn", "pending", idx, "turns", len(s.turns))
		return
	}

	turn := Turn{Role: Assistant, At: s.clock.Now()}
	if err != nil {
		s.log.Warn("chat request failed", "session", s.id, "err", err)
		turn.Status = Errored
		turn.Content = s.fallback
	} else {
		turn.Status = Fulfilled
		turn.Content = reply.Response
		turn.Citations = reply.Sources
		if reply.ConversationID != "" {
			s.conversationID = reply.ConversationID
		}
	}

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	turns[idx] = turn
	s.turns = turns
	s.pending = -1
	s.publish()
}

// Reset clears the conversation. A reply still in flight is discarded
// when it arrives.
func (s *Session) Reset() {
	s.replies.Invalidate(replySlot)
	if s.id != "" {
		s.log.Info("session reset", "session", s.id, "turns", len(s.turns))
	}
	s.id = ""
	s.conversationID = ""
	s.turns = nil
	s.pending = -1
	s.publish()
}

// IsBusy reports whether a reply is pending.
func (s *Session) IsBusy() bool {
	return s.pending >= 0
}

// FetchSuggestions loads suggested opening questions into the snapshot.
// Failure leaves the previous suggestions in place.
func (s *Session) FetchSuggestions() {
	s.suggests.Dispatch(suggestionSlot, s.backend.ChatSuggestions, func(list []string, err error) {
		if err != nil {
			s.log.Warn("suggestions unavailable", "err", err)
			return
		}
		s.suggestions = list
		s.publish()
	})
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:             s.id,
		ConversationID: s.conversationID,
		Turns:          s.turns,
		PendingIndex:   s.pending,
		Citations:      Aggregate(s.turns),
		Suggestions:    s.suggestions,
	}
}

// OnSessionChanged subscribes to session snapshots.
func (s *Session) OnSessionChanged(fn func(SessionSnapshot)) (cancel func()) {
	return s.changed.Subscribe(fn)
}

func (s *Session) publish() {
	s.changed.Publish(s.Snapshot())
}
