// Package chat runs one conversational turn: it records the prompt, asks the
// loaded model for a reply and records the reply in the same session.
package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"pocketlm/internal/events"
	"pocketlm/internal/manager"
	"pocketlm/pkg/types"
)

// Title limits applied when a session is named after its first reply.
const (
	titleWords = 6
	titleRunes = 48
)

// Generator is the slice of the lifecycle manager used by the service.
type Generator interface {
	Reserve() (*manager.Turn, error)
}

// Sessions is the slice of the session cache used by the service.
type Sessions interface {
	Active() (types.Session, bool)
	Session(id string) (types.Session, bool)
	History(ctx context.Context, id string) ([]types.Message, error)
	AppendMessage(ctx context.Context, id string, msg types.Message) (types.Message, error)
	RenameSession(ctx context.Context, id, name string) error
}

// Config encapsulates the tunables for New.
type Config struct {
	Generator Generator
	Sessions  Sessions
	Logger    *zerolog.Logger
	Publisher events.Publisher
}

// Service is safe for concurrent use; the generator admits one turn at a time.
type Service struct {
	gen      Generator
	sessions Sessions
	log      zerolog.Logger
	pub      events.Publisher
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Generator == nil || cfg.Sessions == nil {
		return nil, errors.New("chat: generator and sessions are required")
	}
	s := &Service{gen: cfg.Generator, sessions: cfg.Sessions, log: zerolog.Nop(), pub: events.OrNoop(cfg.Publisher)}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "chat").Logger()
	}
	return s, nil
}

type emptyPromptError struct{}

func (emptyPromptError) Error() string { return "prompt must not be empty" }

// IsEmptyPrompt reports whether err rejected a blank prompt.
func IsEmptyPrompt(err error) bool {
	var e emptyPromptError
	return errors.As(err, &e)
}

// Send appends prompt to session sessionID (the active session when empty),
// generates a reply and appends it. The generation slot is reserved before
// anything is written, so without a loaded model, or while the model is
// busy, nothing is recorded. Once the prompt is recorded the turn runs to
// completion even if ctx is cancelled. If generation fails, the prompt stays
// in the history and the error is returned.
func (s *Service) Send(ctx context.Context, sessionID, prompt string) (user, reply types.Message, err error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return user, reply, emptyPromptError{}
	}
	turn, err := s.gen.Reserve()
	if err != nil {
		return user, reply, err
	}
	defer turn.Release()
	if sessionID == "" {
		active, ok := s.sessions.Active()
		if !ok {
			return user, reply, errors.New("no active session")
		}
		sessionID = active.ID
	}

	user, err = s.sessions.AppendMessage(ctx, sessionID, types.Message{Role: types.RoleUser, Content: prompt})
	if err != nil {
		return user, reply, err
	}
	ctx = context.WithoutCancel(ctx)
	r, err := turn.Generate(ctx, prompt)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("generation failed")
		return user, reply, err
	}
	reply, err = s.sessions.AppendMessage(ctx, sessionID, types.Message{
		Role:             types.RoleModel,
		Content:          r.Text,
		ModelName:        r.Model,
		GenerationTimeMs: r.Duration.Milliseconds(),
	})
	if err != nil {
		return user, reply, err
	}
	s.pub.Publish(events.Event{Name: "reply", Model: r.Model, Fields: map[string]any{"session": sessionID, "dur_ms": r.Duration.Milliseconds()}})
	s.autoTitle(ctx, sessionID, r.Text)
	return user, reply, nil
}

// autoTitle names a session still carrying a default name after its first
// model reply. Failures are logged only.
func (s *Service) autoTitle(ctx context.Context, sessionID, text string) {
	sess, ok := s.sessions.Session(sessionID)
	if !ok || (sess.Name != types.DefaultSessionName && sess.Name != types.NewSessionName) {
		return
	}
	hist, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("auto title: read history")
		return
	}
	replies := 0
	for _, m := range hist {
		if m.Role == types.RoleModel {
			replies++
		}
	}
	if replies != 1 {
		return
	}
	title := Title(text)
	if title == "" {
		return
	}
	if err := s.sessions.RenameSession(ctx, sessionID, title); err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("auto title: rename")
	}
}

// Title derives a session title from reply text: the first six words,
// trimmed, at most 48 runes.
func Title(text string) string {
	words := strings.Fields(text)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > titleRunes {
		title = strings.TrimSpace(string([]rune(title)[:titleRunes]))
	}
	return title
}
