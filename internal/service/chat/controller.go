package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/model/persona"
	"github.com/zhouzirui/aichat/internal/service/ai"
	"github.com/zhouzirui/aichat/internal/service/session"
	"github.com/zhouzirui/aichat/internal/service/stream"
)

var (
	ErrBusy       = errors.New("a reply is already in progress")
	ErrEmptyInput = errors.New("input is empty")
)

// State is the position of the controller in the current user turn.
type State int

const (
	StateIdle State = iota
	StateAwaitingUserInput
	StateRequesting
	StateStreaming
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Controller.
type Options struct {
	Store    session.Store
	Client   ai.Client
	Defaults persona.Persona
	Logger   *zap.Logger
	// Now is the clock used for session identifiers.
	Now func() time.Time
}

// Controller runs user turns against one active conversation. Turns are
// strictly sequential; an overlapping submission is rejected with ErrBusy.
type Controller struct {
	store    session.Store
	client   ai.Client
	defaults persona.Persona
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	active *session.Active
	state  State
	busy   bool
	cancel context.CancelFunc

	// acc is only touched by the goroutine running the current turn.
	acc stream.Accumulator
}

// NewController starts with a fresh session for opts.Defaults.
func NewController(opts Options) *Controller {
	c := &Controller{
		store:    opts.Store,
		client:   opts.Client,
		defaults: opts.Defaults,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if !c.defaults.Valid() {
		c.defaults = persona.Default()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("chat")
	if c.now == nil {
		c.now = time.Now
	}

	c.active = session.NewActive(c.defaults, "")
	c.active.Reset(c.defaults, c.nextIdentifier())
	return c
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// ActiveID returns the identifier of the active conversation.
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.ID()
}

// Snapshot returns a copy of the active conversation.
func (c *Controller) Snapshot() chat.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.ToRecord()
}

// ListSessions returns stored identifiers, most recent first.
func (c *Controller) ListSessions() ([]string, error) {
	return c.store.List()
}

type turn struct {
	id        string
	sessionID string
	listener  Listener
}

func (t *turn) emit(ev Event) {
	ev.TurnID = t.id
	ev.SessionID = t.sessionID
	t.listener(ev)
}

// Submit runs one user turn: append the input, stream the reply, store the
// result. Whitespace-only input is ignored with ErrEmptyInput. Failures are
// reported through listener and returned; the user message is kept either way.
func (c *Controller) Submit(ctx context.Context, input string, listener Listener) error {
	if chat.Blank(input) {
		return ErrEmptyInput
	}
	if listener == nil {
		listener = func(Event) {}
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancel = cancel
	c.state = StateAwaitingUserInput
	defer c.endTurn(cancel)

	t := &turn{id: uuid.NewString(), sessionID: c.active.ID(), listener: listener}
	if err := c.active.AppendMessage(chat.RoleUser, input); err != nil {
		c.mu.Unlock()
		return c.fail(t, err)
	}
	_, prompt := c.active.Persona()
	messages := ai.BuildMessages(prompt, c.active.Messages())
	c.state = StateRequesting
	c.mu.Unlock()

	log := c.logger.With(zap.String("turn", t.id), zap.String("session", t.sessionID))
	log.Info("turn started", zap.Int("messages", len(messages)))
	t.emit(Event{Type: EventUserMessageAppended, Role: chat.RoleUser, Text: input})

	reply, err := c.client.Stream(turnCtx, messages)
	if err != nil {
		if turnCtx.Err() != nil {
			log.Info("turn cancelled before the reply started")
			return nil
		}
		return c.fail(t, err)
	}
	defer reply.Close()

	c.setState(StateStreaming)
	streamErr := c.consume(turnCtx, reply, t, log)
	return c.finalize(t, c.acc.Finish(), streamErr, log)
}

// consume feeds fragments to the accumulator until the reply ends, fails or
// the turn is cancelled.
func (c *Controller) consume(ctx context.Context, reply ai.Stream, t *turn, log *zap.Logger) error {
	c.acc.Start()
	for {
		if ctx.Err() != nil {
			log.Info("turn cancelled", zap.Int("partial", len(c.acc.Partial())))
			return nil
		}

		frag := reply.Next()
		if ctx.Err() != nil {
			log.Info("turn cancelled", zap.Int("partial", len(c.acc.Partial())))
			return nil
		}

		switch frag.Kind {
		case ai.FragmentText:
			if frag.Text == "" {
				continue
			}
			t.emit(Event{Type: EventPartialTextUpdated, Role: chat.RoleAssistant, Text: c.acc.Consume(frag.Text)})
		case ai.FragmentSkip:
			log.Warn("skipping malformed fragment", zap.Error(frag.Err))
		case ai.FragmentDone:
			return nil
		case ai.FragmentFatal:
			return frag.Err
		}
	}
}

// finalize stores a non-empty reply, partial or not, then reports streamErr.
func (c *Controller) finalize(t *turn, text string, streamErr error, log *zap.Logger) error {
	c.mu.Lock()
	c.state = StateFinalizing
	if text == "" {
		c.mu.Unlock()
		if streamErr != nil {
			return c.fail(t, streamErr)
		}
		log.Info("empty reply discarded")
		return nil
	}
	if err := c.active.AppendMessage(chat.RoleAssistant, text); err != nil {
		c.mu.Unlock()
		return c.fail(t, err)
	}
	record := c.active.ToRecord()
	c.mu.Unlock()

	t.emit(Event{Type: EventAssistantMessageFinalized, Role: chat.RoleAssistant, Text: text})

	saveErr := c.store.Save(record)
	if saveErr != nil {
		log.Error("failed to save session", zap.Error(saveErr))
	} else {
		log.Info("turn completed", zap.Int("reply", len(text)))
	}

	switch {
	case streamErr != nil && saveErr != nil:
		return c.fail(t, errors.Join(streamErr, saveErr))
	case streamErr != nil:
		return c.fail(t, streamErr)
	case saveErr != nil:
		return c.fail(t, saveErr)
	}
	return nil
}

func (c *Controller) fail(t *turn, err error) error {
	c.setState(StateFailed)
	kind := ClassifyError(err)
	c.logger.Warn("turn failed",
		zap.String("turn", t.id),
		zap.String("kind", string(kind)),
		zap.Error(err))
	t.emit(Event{Type: EventErrorOccurred, Kind: kind, Detail: err.Error()})
	return err
}

func (c *Controller) endTurn(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	c.busy = false
	c.cancel = nil
	c.state = StateIdle
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Cancel stops the in-flight turn; text received so far is still stored.
// It reports whether a turn was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy || c.cancel == nil {
		return false
	}
	c.cancel()
	return true
}

// NewSession stores the current conversation if it has messages and starts
// a fresh one with the default persona.
func (c *Controller) NewSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}

	if c.active.Len() > 0 {
		if err := c.store.Save(c.active.ToRecord()); err != nil {
			return err
		}
	}
	c.active.Reset(c.defaults, c.nextIdentifier())
	c.logger.Info("new session", zap.String("session", c.active.ID()))
	return nil
}

// LoadSession replaces the active conversation with the stored one. On error
// the active conversation is left untouched.
func (c *Controller) LoadSession(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}

	record, err := c.store.Load(id)
	if err != nil {
		c.logger.Warn("failed to load session", zap.String("session", id), zap.Error(err))
		return err
	}
	c.active.Replace(record)
	c.logger.Info("session loaded", zap.String("session", id), zap.Int("messages", len(record.Messages)))
	return nil
}

// DeleteSession removes a stored conversation. Deleting the active one
// resets it to a fresh default session.
func (c *Controller) DeleteSession(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	isActive := id == c.active.ID()
	if isActive && c.busy {
		return ErrBusy
	}
	if err := c.store.Delete(id); err != nil {
		return err
	}
	if isActive {
		c.active.Reset(c.defaults, c.nextIdentifier())
	}
	c.logger.Info("session deleted", zap.String("session", id), zap.Bool("active", isActive))
	return nil
}

// SetPersona edits the persona of the active conversation. Blank values are
// ignored. Conversations with messages are saved right away.
func (c *Controller) SetPersona(name, prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}

	c.active.SetPersona(name, prompt)
	if c.active.Len() == 0 {
		return nil
	}
	return c.store.Save(c.active.ToRecord())
}

// nextIdentifier must be called with mu held.
func (c *Controller) nextIdentifier() string {
	current := c.active.ID()
	return session.UniqueIdentifier(session.NewIdentifier(c.now()), func(id string) bool {
		return id == current || c.store.Exists(id)
	})
}
