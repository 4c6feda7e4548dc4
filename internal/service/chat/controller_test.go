package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/model/persona"
	"github.com/zhouzirui/aichat/internal/service/ai"
	"github.com/zhouzirui/aichat/internal/service/session"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeStream replays scripted fragments, then Done.
type fakeStream struct {
	frags  []ai.Fragment
	pos    int
	closed bool
}

func (s *fakeStream) Next() ai.Fragment {
	if s.pos >= len(s.frags) {
		return ai.Fragment{Kind: ai.FragmentDone}
	}
	f := s.frags[s.pos]
	s.pos++
	return f
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeClient struct {
	mu       sync.Mutex
	frags    []ai.Fragment
	err      error
	requests [][]chat.Message
	last     *fakeStream
}

func (c *fakeClient) Stream(ctx context.Context, messages []chat.Message) (ai.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, messages)
	if c.err != nil {
		return nil, c.err
	}
	c.last = &fakeStream{frags: c.frags}
	return c.last, nil
}

func texts(parts ...string) []ai.Fragment {
	out := make([]ai.Fragment, 0, len(parts))
	for _, p := range parts {
		out = append(out, ai.Fragment{Kind: ai.FragmentText, Text: p})
	}
	return out
}

// failingStore refuses every save.
type failingStore struct {
	*session.FileStore
}

func (s failingStore) Save(record chat.Record) error {
	return &session.StorageWriteError{Identifier: record.Identifier, Err: errors.New("disk full")}
}

type recorder struct {
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(typ EventType) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestController(t *testing.T, client ai.Client) (*Controller, *session.FileStore) {
	t.Helper()
	store := session.NewFileStore(t.TempDir(), nil)
	c := NewController(Options{
		Store:    store,
		Client:   client,
		Defaults: persona.Default(),
		Now:      func() time.Time { return fixedNow },
	})
	return c, store
}

func TestNewControllerStartsWithDefaultPersona(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{})

	record := c.Snapshot()
	assert.Equal(t, "2025-03-01_10-00-00", record.Identifier)
	assert.Equal(t, persona.Default().Name, record.PersonaName)
	assert.Equal(t, persona.Default().Prompt, record.PersonaPrompt)
	assert.Empty(t, record.Messages)
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmitSendsPersonaAndHistory(t *testing.T) {
	client := &fakeClient{frags: texts("Hi")}
	c, _ := newTestController(t, client)

	require.NoError(t, c.Submit(context.Background(), "Hello", nil))

	require.Len(t, client.requests, 1)
	assert.Equal(t, []chat.Message{
		chat.SystemMessage(persona.Default().Prompt),
		chat.Message{Role: chat.RoleUser, Content: "Hello"},
	}, client.requests[0])
	assert.Equal(t, chat.Message{Role: chat.RoleUser, Content: "Hello"}, c.Snapshot().Messages[0])
}

func TestSubmitStreamsPartialsAndStoresReply(t *testing.T) {
	client := &fakeClient{frags: texts("Hi", " there", "!")}
	c, store := newTestController(t, client)
	rec := &recorder{}

	require.NoError(t, c.Submit(context.Background(), "Hello", rec.listen))

	var partials []string
	for _, ev := range rec.ofType(EventPartialTextUpdated) {
		partials = append(partials, ev.Text)
	}
	assert.Equal(t, []string{"Hi", "Hi there", "Hi there!"}, partials)

	finals := rec.ofType(EventAssistantMessageFinalized)
	require.Len(t, finals, 1)
	assert.Equal(t, "Hi there!", finals[0].Text)

	assert.Equal(t, []chat.Message{
		chat.Message{Role: chat.RoleUser, Content: "Hello"},
		chat.Message{Role: chat.RoleAssistant, Content: "Hi there!"},
	}, c.Snapshot().Messages)

	stored, err := store.Load(c.ActiveID())
	require.NoError(t, err)
	assert.Equal(t, c.Snapshot(), stored)
	assert.True(t, client.last.closed)
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmitEventOrder(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{frags: texts("a", "b")})
	rec := &recorder{}

	require.NoError(t, c.Submit(context.Background(), "Hello", rec.listen))

	var types []EventType
	turnIDs := map[string]bool{}
	for _, ev := range rec.events {
		types = append(types, ev.Type)
		turnIDs[ev.TurnID] = true
		assert.Equal(t, c.ActiveID(), ev.SessionID)
	}
	assert.Equal(t, []EventType{
		EventUserMessageAppended,
		EventPartialTextUpdated,
		EventPartialTextUpdated,
		EventAssistantMessageFinalized,
	}, types)
	assert.Len(t, turnIDs, 1)
}

func TestSubmitRequestFailureKeepsUserMessage(t *testing.T) {
	client := &fakeClient{err: &ai.TransportError{Op: "request", Err: errors.New("connection refused")}}
	c, store := newTestController(t, client)
	rec := &recorder{}

	err := c.Submit(context.Background(), "Hello", rec.listen)
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrTransport)

	assert.Equal(t, []chat.Message{chat.Message{Role: chat.RoleUser, Content: "Hello"}}, c.Snapshot().Messages)
	assert.Empty(t, rec.ofType(EventAssistantMessageFinalized))

	errs := rec.ofType(EventErrorOccurred)
	require.Len(t, errs, 1)
	assert.Equal(t, KindTransport, errs[0].Kind)
	assert.Contains(t, errs[0].Detail, "connection refused")

	assert.False(t, store.Exists(c.ActiveID()))
	assert.Equal(t, StateIdle, c.State())
}

func TestSubmitRemoteErrorStatus(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{err: &ai.APIError{StatusCode: 401, Message: "bad key"}})
	rec := &recorder{}

	err := c.Submit(context.Background(), "Hello", rec.listen)
	var apiErr *ai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindRemoteAPI, rec.ofType(EventErrorOccurred)[0].Kind)
}

func TestSubmitMidStreamFailureKeepsPartialReply(t *testing.T) {
	frags := append(texts("Hi", " the"), ai.Fragment{
		Kind: ai.FragmentFatal,
		Err:  &ai.TransportError{Op: "read", Err: errors.New("connection reset")},
	})
	c, store := newTestController(t, &fakeClient{frags: frags})
	rec := &recorder{}

	err := c.Submit(context.Background(), "Hello", rec.listen)
	assert.ErrorIs(t, err, ai.ErrTransport)

	assert.Equal(t, []chat.Message{
		chat.Message{Role: chat.RoleUser, Content: "Hello"},
		chat.Message{Role: chat.RoleAssistant, Content: "Hi the"},
	}, c.Snapshot().Messages)
	assert.True(t, store.Exists(c.ActiveID()))
	assert.Len(t, rec.ofType(EventErrorOccurred), 1)
}

func TestSubmitSkipsMalformedFragments(t *testing.T) {
	frags := []ai.Fragment{
		{Kind: ai.FragmentText, Text: "Hi"},
		{Kind: ai.FragmentSkip, Err: errors.New("malformed fragment")},
		{Kind: ai.FragmentText, Text: ""},
		{Kind: ai.FragmentText, Text: "!"},
	}
	c, _ := newTestController(t, &fakeClient{frags: frags})
	rec := &recorder{}

	require.NoError(t, c.Submit(context.Background(), "Hello", rec.listen))

	assert.Len(t, rec.ofType(EventPartialTextUpdated), 2)
	assert.Empty(t, rec.ofType(EventErrorOccurred))
	assert.Equal(t, "Hi!", c.Snapshot().Messages[1].Content)
}

func TestSubmitEmptyReplyIsDiscarded(t *testing.T) {
	c, store := newTestController(t, &fakeClient{})
	rec := &recorder{}

	require.NoError(t, c.Submit(context.Background(), "Hello", rec.listen))

	assert.Len(t, c.Snapshot().Messages, 1)
	assert.Empty(t, rec.ofType(EventAssistantMessageFinalized))
	assert.False(t, store.Exists(c.ActiveID()))
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	client := &fakeClient{frags: texts("Hi")}
	c, _ := newTestController(t, client)

	for _, input := range []string{"", "   ", "\n\t"} {
		err := c.Submit(context.Background(), input, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Empty(t, client.requests)
	assert.Empty(t, c.Snapshot().Messages)
}

func TestSubmitWhileBusy(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{frags: texts("Hi", "!")})

	var nested []error
	listener := func(ev Event) {
		if ev.Type != EventPartialTextUpdated {
			return
		}
		assert.True(t, c.Busy())
		nested = append(nested,
			c.Submit(context.Background(), "again", nil),
			c.NewSession(),
			c.LoadSession("whatever"),
			c.SetPersona("n", "p"),
			c.DeleteSession(c.ActiveID()),
		)
	}

	require.NoError(t, c.Submit(context.Background(), "Hello", listener))

	require.NotEmpty(t, nested)
	for _, err := range nested {
		assert.ErrorIs(t, err, ErrBusy)
	}
	assert.Len(t, c.Snapshot().Messages, 2)
	assert.False(t, c.Busy())
}

func TestCancelKeepsPartialReply(t *testing.T) {
	client := &fakeClient{frags: texts("Hi", " there", " late")}
	c, store := newTestController(t, client)
	rec := &recorder{}

	listener := func(ev Event) {
		rec.listen(ev)
		if ev.Type == EventPartialTextUpdated && ev.Text == "Hi there" {
			assert.True(t, c.Cancel())
		}
	}

	require.NoError(t, c.Submit(context.Background(), "Hello", listener))

	assert.Equal(t, "Hi there", c.Snapshot().Messages[1].Content)
	assert.Len(t, rec.ofType(EventPartialTextUpdated), 2)
	assert.Empty(t, rec.ofType(EventErrorOccurred))
	assert.True(t, store.Exists(c.ActiveID()))
	assert.False(t, c.Cancel())
}

func TestCancelWhenIdle(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{})
	assert.False(t, c.Cancel())
}

func TestSubmitStorageFailure(t *testing.T) {
	store := failingStore{session.NewFileStore(t.TempDir(), nil)}
	c := NewController(Options{
		Store:    store,
		Client:   &fakeClient{frags: texts("Hi")},
		Defaults: persona.Default(),
		Now:      func() time.Time { return fixedNow },
	})
	rec := &recorder{}

	err := c.Submit(context.Background(), "Hello", rec.listen)
	var writeErr *session.StorageWriteError
	require.ErrorAs(t, err, &writeErr)

	assert.Len(t, rec.ofType(EventAssistantMessageFinalized), 1)
	errs := rec.ofType(EventErrorOccurred)
	require.Len(t, errs, 1)
	assert.Equal(t, KindStorageWrite, errs[0].Kind)
	assert.Len(t, c.Snapshot().Messages, 2)
}

func TestNewSessionSavesCurrent(t *testing.T) {
	clock := fixedNow
	store := session.NewFileStore(t.TempDir(), nil)
	c := NewController(Options{
		Store:    store,
		Client:   &fakeClient{frags: texts("Hi")},
		Defaults: persona.Default(),
		Now:      func() time.Time { return clock },
	})
	require.NoError(t, c.SetPersona("Socrates", "Ask questions."))
	require.NoError(t, c.Submit(context.Background(), "Hello", nil))
	first := c.ActiveID()

	clock = clock.Add(time.Minute)
	require.NoError(t, c.NewSession())

	assert.NotEqual(t, first, c.ActiveID())
	assert.Equal(t, "2025-03-01_10-01-00", c.ActiveID())
	assert.Empty(t, c.Snapshot().Messages)
	assert.Equal(t, persona.Default().Name, c.Snapshot().PersonaName)

	stored, err := store.Load(first)
	require.NoError(t, err)
	assert.Equal(t, "Socrates", stored.PersonaName)
	assert.Len(t, stored.Messages, 2)
}

func TestNewSessionSameSecondGetsSuffix(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{frags: texts("Hi")})
	require.NoError(t, c.Submit(context.Background(), "Hello", nil))

	require.NoError(t, c.NewSession())
	assert.Equal(t, "2025-03-01_10-00-00-02", c.ActiveID())

	require.NoError(t, c.NewSession())
	assert.Equal(t, "2025-03-01_10-00-00-03", c.ActiveID())
}

func TestLoadSession(t *testing.T) {
	c, store := newTestController(t, &fakeClient{frags: texts("Sure")})
	saved := chat.Record{
		PersonaName:   "Iron Man",
		PersonaPrompt: "You are Tony Stark.",
		Identifier:    "s1",
		Messages:      []chat.Message{chat.Message{Role: chat.RoleUser, Content: "Hi"}, chat.Message{Role: chat.RoleAssistant, Content: "Hey"}},
	}
	require.NoError(t, store.Save(saved))

	require.NoError(t, c.LoadSession("s1"))
	assert.Equal(t, saved, c.Snapshot())

	client := &fakeClient{frags: texts("Sure")}
	c.client = client
	require.NoError(t, c.Submit(context.Background(), "More", nil))
	assert.Equal(t, chat.SystemMessage("You are Tony Stark."), client.requests[0][0])
	assert.Len(t, client.requests[0], 4)
}

func TestLoadMissingSessionLeavesActiveUntouched(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{frags: texts("Hi")})
	require.NoError(t, c.Submit(context.Background(), "Hello", nil))
	before := c.Snapshot()

	err := c.LoadSession("does-not-exist")
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Equal(t, KindNotFound, ClassifyError(err))
	assert.Equal(t, before, c.Snapshot())
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	c, store := newTestController(t, &fakeClient{})
	for _, id := range []string{"s1", "s2"} {
		r := chat.Record{PersonaName: "n", PersonaPrompt: "p", Identifier: id, Messages: []chat.Message{}}
		require.NoError(t, store.Save(r))
	}

	ids, err := c.ListSessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, ids)
}

func TestDeleteActiveSessionResets(t *testing.T) {
	c, store := newTestController(t, &fakeClient{frags: texts("Hi")})
	require.NoError(t, c.SetPersona("Socrates", "Ask questions."))
	require.NoError(t, c.Submit(context.Background(), "Hello", nil))
	id := c.ActiveID()
	require.True(t, store.Exists(id))

	require.NoError(t, c.DeleteSession(id))

	assert.False(t, store.Exists(id))
	assert.NotEqual(t, id, c.ActiveID())
	assert.Empty(t, c.Snapshot().Messages)
	assert.Equal(t, persona.Default().Name, c.Snapshot().PersonaName)
}

func TestDeleteOtherSessionKeepsActive(t *testing.T) {
	c, store := newTestController(t, &fakeClient{frags: texts("Hi")})
	require.NoError(t, store.Save(chat.Record{PersonaName: "n", PersonaPrompt: "p", Identifier: "old", Messages: []chat.Message{}}))
	require.NoError(t, c.Submit(context.Background(), "Hello", nil))
	before := c.Snapshot()

	require.NoError(t, c.DeleteSession("old"))
	assert.False(t, store.Exists("old"))
	assert.Equal(t, before, c.Snapshot())
}

func TestSetPersona(t *testing.T) {
	c, store := newTestController(t, &fakeClient{frags: texts("Hi")})

	require.NoError(t, c.SetPersona("Socrates", ""))
	assert.Equal(t, "Socrates", c.Snapshot().PersonaName)
	assert.Equal(t, persona.Default().Prompt, c.Snapshot().PersonaPrompt)
	assert.False(t, store.Exists(c.ActiveID()), "empty sessions are not stored")

	require.NoError(t, c.Submit(context.Background(), "Hello", nil))
	require.NoError(t, c.SetPersona("", "Ask questions."))

	stored, err := store.Load(c.ActiveID())
	require.NoError(t, err)
	assert.Equal(t, "Socrates", stored.PersonaName)
	assert.Equal(t, "Ask questions.", stored.PersonaPrompt)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"busy", ErrBusy, KindBusy},
		{"empty input", ErrEmptyInput, KindEmptyInput},
		{"not found", session.ErrNotFound, KindNotFound},
		{"corrupt", session.ErrCorruptRecord, KindCorruptRecord},
		{"invalid role", session.ErrInvalidRole, KindInvalidRole},
		{"empty content", session.ErrEmptyContent, KindInvalidMessage},
		{"transport", &ai.TransportError{Op: "read", Err: errors.New("reset")}, KindTransport},
		{"remote", &ai.APIError{StatusCode: 500, Message: "boom"}, KindRemoteAPI},
		{"missing key", ai.ErrMissingAPIKey, KindRemoteAPI},
		{"storage", &session.StorageWriteError{Identifier: "x", Err: errors.New("full")}, KindStorageWrite},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "unknown", State(99).String())
}
