// Package sessions keeps an in-memory view of sessions and their histories
// that writes through to the persistent store.
//
// The store is the source of truth. Every mutation is persisted first and
// applied to the cache only after the write succeeded, so the cached history
// of a session is always a prefix-consistent copy of what the store holds.
package sessions

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pocketlm/internal/events"
	"pocketlm/internal/store"
	"pocketlm/pkg/types"
)

// Store is the slice of the persistent store the cache writes through to.
type Store interface {
	ListSessions(ctx context.Context) ([]types.Session, error)
	GetSession(ctx context.Context, id string) (types.Session, error)
	CreateSession(ctx context.Context, id, name string) (types.Session, error)
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string) ([]types.Message, error)
	AppendMessage(ctx context.Context, m types.Message) (types.Message, error)
}

// Config encapsulates the tunables for New.
type Config struct {
	Store     Store
	Logger    *zerolog.Logger
	Publisher events.Publisher
	// NewID generates session and message ids; defaults to random UUIDs.
	NewID func() string
}

// Cache is safe for concurrent use.
type Cache struct {
	store Store
	log   zerolog.Logger
	pub   events.Publisher
	newID func() string

	initMu      sync.Mutex
	initialized bool

	// mu guards entries, order, active and the Session value of each entry
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // newest first
	active  string
}

type entry struct {
	session types.Session

	// hmu serializes hydration and appends of one session
	hmu      sync.Mutex
	hydrated bool
	history  []types.Message
}

// New constructs an uninitialized Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.Store == nil {
		return nil, errors.New("sessions: store is required")
	}
	c := &Cache{
		store:   cfg.Store,
		log:     zerolog.Nop(),
		pub:     events.OrNoop(cfg.Publisher),
		newID:   cfg.NewID,
		entries: make(map[string]*entry),
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.With().Str("component", "sessions").Logger()
	}
	return c, nil
}

// invalidNameError rejects an empty session name.
type invalidNameError struct{}

func (invalidNameError) Error() string { return "session name must not be empty" }

// IsInvalidName reports whether err rejected an empty name.
func IsInvalidName(err error) bool {
	var e invalidNameError
	return errors.As(err, &e)
}

// IsNotFound reports whether err names an unknown session.
func IsNotFound(err error) bool { return store.IsNotFound(err) }

// Initialize loads the session list once. With no stored sessions a default
// session is created; otherwise the most recently created one becomes active.
// Later calls are no-ops.
func (c *Cache) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return nil
	}
	list, err := c.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		s, err := c.store.CreateSession(ctx, c.newID(), types.DefaultSessionName)
		if err != nil {
			return err
		}
		c.pub.Publish(events.Event{Name: "session_created", Fields: map[string]any{"session": s.ID}})
		c.mu.Lock()
		c.addLocked(s, true)
		c.active = s.ID
		c.mu.Unlock()
		c.initialized = true
		c.log.Info().Str("session", s.ID).Msg("created default session")
		return nil
	}

	c.mu.Lock()
	for _, s := range list {
		if _, ok := c.entries[s.ID]; ok {
			continue
		}
		c.entries[s.ID] = &entry{session: s}
		c.order = append(c.order, s.ID)
	}
	c.active = list[0].ID
	e := c.entries[c.active]
	c.mu.Unlock()

	if err := c.hydrate(ctx, e); err != nil {
		return err
	}
	c.initialized = true
	c.log.Debug().Int("sessions", len(list)).Str("active", list[0].ID).Msg("sessions initialized")
	return nil
}

// addLocked inserts s as the newest session; requires c.mu.
func (c *Cache) addLocked(s types.Session, hydrated bool) *entry {
	e := &entry{session: s, hydrated: hydrated}
	if hydrated {
		e.history = []types.Message{}
	}
	c.entries[s.ID] = e
	c.order = append([]string{s.ID}, c.order...)
	return e
}

// CreateSession persists a new empty session and makes it active.
func (c *Cache) CreateSession(ctx context.Context) (types.Session, error) {
	if err := c.Initialize(ctx); err != nil {
		return types.Session{}, err
	}
	s, err := c.store.CreateSession(ctx, c.newID(), types.NewSessionName)
	if err != nil {
		return types.Session{}, err
	}
	c.mu.Lock()
	c.addLocked(s, true)
	c.active = s.ID
	c.mu.Unlock()
	c.pub.Publish(events.Event{Name: "session_created", Fields: map[string]any{"session": s.ID}})
	return s, nil
}

// SetActiveSession switches the active session, hydrating its history once.
func (c *Cache) SetActiveSession(ctx context.Context, id string) error {
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	if err := c.hydrate(ctx, e); err != nil {
		return err
	}
	c.mu.Lock()
	_, still := c.entries[id]
	if still {
		c.active = id
	}
	c.mu.Unlock()
	if !still {
		return store.ErrNotFound("session", id)
	}
	return nil
}

// AppendMessage persists msg into session id and then appends it to the
// cached history. Appends to one session are serialized. Empty ID and
// SessionID fields are filled in; the stored message is returned.
func (c *Cache) AppendMessage(ctx context.Context, id string, msg types.Message) (types.Message, error) {
	if err := c.Initialize(ctx); err != nil {
		return types.Message{}, err
	}
	e, err := c.lookup(id)
	if err != nil {
		return types.Message{}, err
	}
	e.hmu.Lock()
	defer e.hmu.Unlock()
	if err := c.hydrateLocked(ctx, id, e); err != nil {
		return types.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = c.newID()
	}
	msg.SessionID = id
	stored, err := c.store.AppendMessage(ctx, msg)
	if err != nil {
		return types.Message{}, err
	}
	e.history = append(e.history, stored)
	c.mu.Lock()
	e.session.UpdatedAt = stored.CreatedAt
	c.mu.Unlock()
	return stored, nil
}

// RenameSession persists a new name and mirrors it in the cache.
func (c *Cache) RenameSession(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalidNameError{}
	}
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	e, err := c.lookup(id)
	if err != nil {
		return err
	}
	if err := c.store.RenameSession(ctx, id, name); err != nil {
		return err
	}
	s, err := c.store.GetSession(ctx, id)
	c.mu.Lock()
	if err == nil {
		e.session = s
	} else {
		e.session.Name = name
	}
	c.mu.Unlock()
	c.pub.Publish(events.Event{Name: "session_renamed", Fields: map[string]any{"session": id, "name": name}})
	return nil
}

// DeleteSession removes a session and its messages. When the active session
// is deleted the most recent remaining one becomes active, or a new default
// session is created if none remain.
func (c *Cache) DeleteSession(ctx context.Context, id string) error {
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	if _, err := c.lookup(id); err != nil {
		return err
	}
	if err := c.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.entries, id)
	for i, sid := range c.order {
		if sid == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	wasActive := c.active == id
	next := ""
	if wasActive {
		c.active = ""
		if len(c.order) > 0 {
			next = c.order[0]
		}
	}
	c.mu.Unlock()
	c.pub.Publish(events.Event{Name: "session_deleted", Fields: map[string]any{"session": id}})

	if !wasActive {
		return nil
	}
	if next != "" {
		return c.SetActiveSession(ctx, next)
	}
	s, err := c.store.CreateSession(ctx, c.newID(), types.DefaultSessionName)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.addLocked(s, true)
	c.active = s.ID
	c.mu.Unlock()
	return nil
}

// Sessions returns every session, newest first.
func (c *Cache) Sessions(ctx context.Context) ([]types.Session, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Session, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].session)
	}
	return out, nil
}

// Session returns the cached metadata of one session.
func (c *Cache) Session(id string) (types.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return types.Session{}, false
	}
	return e.session, true
}

// Active returns the active session, if initialized.
func (c *Cache) Active() (types.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[c.active]
	if !ok {
		return types.Session{}, false
	}
	return e.session, true
}

// History returns a copy of a session's messages, hydrating it if needed.
func (c *Cache) History(ctx context.Context, id string) ([]types.Message, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	e, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	e.hmu.Lock()
	defer e.hmu.Unlock()
	if err := c.hydrateLocked(ctx, id, e); err != nil {
		return nil, err
	}
	out := make([]types.Message, len(e.history))
	copy(out, e.history)
	return out, nil
}

func (c *Cache) lookup(id string) (*entry, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound("session", id)
	}
	return e, nil
}

func (c *Cache) hydrate(ctx context.Context, e *entry) error {
	c.mu.RLock()
	id := e.session.ID
	c.mu.RUnlock()
	e.hmu.Lock()
	defer e.hmu.Unlock()
	return c.hydrateLocked(ctx, id, e)
}

// hydrateLocked loads history from the store once; requires e.hmu.
func (c *Cache) hydrateLocked(ctx context.Context, id string, e *entry) error {
	if e.hydrated {
		return nil
	}
	msgs, err := c.store.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	e.history = msgs
	e.hydrated = true
	c.log.Debug().Str("session", id).Int("messages", len(msgs)).Msg("session hydrated")
	return nil
}
