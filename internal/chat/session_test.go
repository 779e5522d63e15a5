package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxpadi-client/internal/db"
	"taxpadi-client/internal/models"
)

type chatCall struct {
	message string
	files   []models.Attachment
}

type fakeChatAPI struct {
	mu     sync.Mutex
	calls  []chatCall
	err    error
	reply  func(message string) string
	active atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
}

func (f *fakeChatAPI) Chat(ctx context.Context, message string, files []models.Attachment) (*models.ChatResponse, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, chatCall{message: message, files: files})
	err, reply := f.err, f.reply
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	resp := &models.ChatResponse{}
	resp.Data.Response = "reply to " + message
	if reply != nil {
		resp.Data.Response = reply(message)
	}
	return resp, nil
}

func (f *fakeChatAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memStore is an in-memory Store with injectable write failures
type memStore struct {
	mu       sync.Mutex
	items    map[string]string
	setErr   error
	setCalls int
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]string)}
}

func (m *memStore) GetItem(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return "", db.ErrNotFound
	}
	return v, nil
}

func (m *memStore) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.items[key] = value
	return nil
}

func (m *memStore) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// fixedClock always returns the same instant, forcing the session to
// break timestamp ties itself
func fixedClock() time.Time {
	return time.UnixMilli(1_700_000_000_000)
}

func newTestSession(t *testing.T, api ChatAPI, store Store) *Session {
	t.Helper()
	s := NewSession(api, store, WithClock(fixedClock), WithRenderer(NewRenderer(t.TempDir())))
	require.NoError(t, s.Initialize())
	t.Cleanup(s.Close)
	return s
}

func waitReply(t *testing.T, ch <-chan models.ChatMessage) models.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "reply channel closed without a reply")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
	return models.ChatMessage{}
}

func TestInitialize_SeedsGreeting(t *testing.T) {
	store := newMemStore()
	s := newTestSession(t, &fakeChatAPI{}, store)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.Equal(t, DefaultGreeting, msgs[0].Content)
	assert.Equal(t, fixedClock().UnixMilli(), msgs[0].Timestamp)

	_, err := store.GetItem(TranscriptKey)
	assert.NoError(t, err, "seeded transcript should be persisted")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	s := newTestSession(t, &fakeChatAPI{}, newMemStore())
	_, err := s.SendText(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, s.Initialize())
	assert.GreaterOrEqual(t, len(s.Messages()), 2)
}

func TestInitialize_CustomGreeting(t *testing.T) {
	s := NewSession(&fakeChatAPI{}, newMemStore(), WithGreeting("Welcome back"))
	defer s.Close()
	require.NoError(t, s.Initialize())
	assert.Equal(t, "Welcome back", s.Messages()[0].Content)
}

func TestInitialize_CorruptTranscriptFallsBackToGreeting(t *testing.T) {
	store := newMemStore()
	store.items[TranscriptKey] = "{garbage"

	s := NewSession(&fakeChatAPI{}, store)
	defer s.Close()

	assert.Error(t, s.Initialize())
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultGreeting, msgs[0].Content)
	assert.Equal(t, "{garbage", store.items[TranscriptKey], "failed restore must not overwrite storage")
	assert.Zero(t, store.setCalls)
}

func TestInitialize_BadAttachmentKeepsHistory(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate())

	stored := `[
		{"id":"1","role":"assistant","content":"Hello","timestamp":100},
		{"id":"2","role":"user","content":"what is VAT?","timestamp":101},
		{"id":"3","role":"assistant","content":"VAT is 7.5%","timestamp":102},
		{"id":"4","role":"user","content":"📎 Uploaded: scan.png","timestamp":103,
		 "file":{"name":"scan.png","type":"image/png","data":"data:image/png;base64,***"}},
		{"id":"5","role":"user","content":"📎 Uploaded: empty.txt","timestamp":104,
		 "file":{"name":"empty.txt","type":"text/plain","data":"data:"}}
	]`
	require.NoError(t, database.SetItem(TranscriptKey, stored))

	s := NewSession(&fakeChatAPI{}, database)
	defer s.Close()
	require.NoError(t, s.Initialize())

	msgs := s.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "VAT is 7.5%", msgs[2].Content)
	assert.False(t, msgs[3].HasFile(), "unreadable attachment is dropped")
	assert.Equal(t, "📎 Uploaded: scan.png", msgs[3].Content)
	require.True(t, msgs[4].HasFile())
	assert.Empty(t, msgs[4].File.Data)

	raw, err := database.GetItem(TranscriptKey)
	require.NoError(t, err)
	restored, err := DecodeTranscript(raw)
	require.NoError(t, err)
	assert.Len(t, restored, 5)
}

func TestSend_EmptyIsNoop(t *testing.T) {
	api := &fakeChatAPI{}
	store := newMemStore()
	s := newTestSession(t, api, store)
	before := len(s.Messages())
	writes := store.setCalls

	ch, err := s.SendWithAttachments(context.Background(), "   ", nil)
	require.NoError(t, err)
	_, open := <-ch
	assert.False(t, open)

	assert.Len(t, s.Messages(), before)
	assert.Equal(t, 0, api.callCount())
	assert.Equal(t, writes, store.setCalls)
}

func TestSendText_AppendsUserThenAssistant(t *testing.T) {
	api := &fakeChatAPI{}
	s := newTestSession(t, api, newMemStore())

	ch, err := s.SendText(context.Background(), "What is VAT?")
	require.NoError(t, err)
	reply := waitReply(t, ch)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	user, assistant := msgs[1], msgs[2]

	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "What is VAT?", user.Content)
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	assert.Equal(t, "reply to What is VAT?", assistant.Content)
	assert.Equal(t, reply, assistant)
	assert.Less(t, user.Timestamp, assistant.Timestamp)
	assert.Equal(t, 1, api.callCount())
}

func TestSendText_FailureAppendsOneFallback(t *testing.T) {
	api := &fakeChatAPI{err: errors.New("connection refused")}
	s := newTestSession(t, api, newMemStore())

	ch, err := s.SendText(context.Background(), "hello?")
	require.NoError(t, err)
	reply := waitReply(t, ch)

	assert.Equal(t, FallbackReply, reply.Content)
	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, FallbackReply, msgs[2].Content)

	fallbacks := 0
	for _, m := range msgs {
		if m.Content == FallbackReply {
			fallbacks++
		}
	}
	assert.Equal(t, 1, fallbacks)
}

func TestSendWithAttachments_OrderedTimestamps(t *testing.T) {
	api := &fakeChatAPI{}
	s := newTestSession(t, api, newMemStore())

	files := []models.Attachment{
		{Name: "a.pdf", Type: "application/pdf", Data: []byte("a")},
		{Name: "b.png", Type: "image/png", Data: []byte("b")},
	}
	ch, err := s.SendWithAttachments(context.Background(), "two files", files)
	require.NoError(t, err)
	waitReply(t, ch)

	msgs := s.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "two files", msgs[1].Content)
	assert.Equal(t, "two files 📎 Uploaded: a.pdf", msgs[2].Content)
	assert.Equal(t, "two files 📎 Uploaded: b.png", msgs[3].Content)
	require.True(t, msgs[2].HasFile())
	assert.Equal(t, "a.pdf", msgs[2].File.Name)

	assert.Equal(t, msgs[1].Timestamp+1, msgs[2].Timestamp)
	assert.Equal(t, msgs[1].Timestamp+2, msgs[3].Timestamp)
	for i := 1; i < len(msgs); i++ {
		assert.Less(t, msgs[i-1].Timestamp, msgs[i].Timestamp)
	}

	require.Equal(t, 1, api.callCount())
	assert.Len(t, api.calls[0].files, 2)
	assert.Equal(t, "two files", api.calls[0].message)
}

func TestSendWithAttachments_FileOnly(t *testing.T) {
	s := newTestSession(t, &fakeChatAPI{}, newMemStore())

	ch, err := s.SendWithAttachments(context.Background(), "", []models.Attachment{{Name: "r.pdf", Type: "application/pdf", Data: []byte("x")}})
	require.NoError(t, err)
	waitReply(t, ch)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "📎 Uploaded: r.pdf", msgs[1].Content)
}

func TestConcurrentSends_RepliesInRequestOrder(t *testing.T) {
	api := &fakeChatAPI{delay: 5 * time.Millisecond}
	s := newTestSession(t, api, newMemStore())

	var replies []<-chan models.ChatMessage
	for _, text := range []string{"first", "second", "third"} {
		ch, err := s.SendText(context.Background(), text)
		require.NoError(t, err)
		replies = append(replies, ch)
	}
	for _, ch := range replies {
		waitReply(t, ch)
	}

	var assistant []string
	for _, m := range s.Messages()[1:] {
		if m.Role == models.RoleAssistant {
			assistant = append(assistant, m.Content)
		}
	}
	assert.Equal(t, []string{"reply to first", "reply to second", "reply to third"}, assistant)
	assert.Equal(t, int32(1), api.peak.Load(), "only one request may be in flight")
}

func TestPersist_RoundTripWithAttachment(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, database.Migrate())

	payload := []byte{0x00, 0x01, 0x7f, 0x80, 0xfe, 0xff, '%', 'P', 'D', 'F'}
	first := NewSession(&fakeChatAPI{}, database, WithClock(fixedClock))
	require.NoError(t, first.Initialize())
	ch, err := first.SendWithAttachments(context.Background(), "receipt", []models.Attachment{
		{Name: "receipt.pdf", Type: "application/pdf", Data: payload},
	})
	require.NoError(t, err)
	waitReply(t, ch)
	want := first.Messages()
	first.Close()
	require.NoError(t, first.PersistError())

	second := NewSession(&fakeChatAPI{}, database)
	defer second.Close()
	require.NoError(t, second.Initialize())

	got := second.Messages()
	assert.Equal(t, want, got)

	var withFile *models.ChatMessage
	for i := range got {
		if got[i].HasFile() {
			withFile = &got[i]
		}
	}
	require.NotNil(t, withFile)
	assert.Equal(t, "receipt.pdf", withFile.File.Name)
	assert.Equal(t, "application/pdf", withFile.File.Type)
	assert.Equal(t, payload, withFile.File.Data)

	ref, err := second.Renderer().Open(*withFile)
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentPDF, ref.Kind)
	assert.Equal(t, "receipt.pdf", ref.Name)
}

func TestPersist_FailureIsRecordedNotFatal(t *testing.T) {
	store := newMemStore()
	s := newTestSession(t, &fakeChatAPI{}, store)

	store.mu.Lock()
	store.setErr = errors.New("disk full")
	store.mu.Unlock()

	ch, err := s.SendText(context.Background(), "still works?")
	require.NoError(t, err)
	waitReply(t, ch)

	assert.Len(t, s.Messages(), 3)
	assert.EqualError(t, s.PersistError(), "disk full")

	store.mu.Lock()
	store.setErr = nil
	store.mu.Unlock()

	ch, err = s.SendText(context.Background(), "again")
	require.NoError(t, err)
	waitReply(t, ch)
	assert.NoError(t, s.PersistError())
}

func TestClear_RequiresConfirmation(t *testing.T) {
	store := newMemStore()
	s := newTestSession(t, &fakeChatAPI{}, store)
	ch, _ := s.SendText(context.Background(), "hi")
	waitReply(t, ch)

	cleared, err := s.Clear(ConfirmFunc(func(string) bool { return false }))
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.Len(t, s.Messages(), 3)

	cleared, err = s.Clear(nil)
	require.NoError(t, err)
	assert.False(t, cleared)
}

func TestClear_ResetsToGreetingAndErasesStorage(t *testing.T) {
	store := newMemStore()
	s := newTestSession(t, &fakeChatAPI{}, store)

	ch, _ := s.SendWithAttachments(context.Background(), "x", []models.Attachment{{Name: "a.png", Type: "image/png", Data: []byte("png")}})
	waitReply(t, ch)
	for _, m := range s.Messages() {
		if m.HasFile() {
			_, err := s.Renderer().Open(m)
			require.NoError(t, err)
		}
	}
	require.Equal(t, 1, s.Renderer().Len())

	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	var prompt string
	cleared, err := s.Clear(ConfirmFunc(func(p string) bool { prompt = p; return true }))
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.NotEmpty(t, prompt)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, DefaultGreeting, msgs[0].Content)

	_, err = store.GetItem(TranscriptKey)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Equal(t, 0, s.Renderer().Len())

	ev := <-events
	assert.Equal(t, EventCleared, ev.Type)
	ev = <-events
	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, DefaultGreeting, ev.Message.Content)
}

func TestSubscribe_ReceivesMessagesInOrder(t *testing.T) {
	s := newTestSession(t, &fakeChatAPI{}, newMemStore())
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	ch, err := s.SendText(context.Background(), "hi")
	require.NoError(t, err)
	waitReply(t, ch)

	first := <-events
	second := <-events
	assert.Equal(t, models.RoleUser, first.Message.Role)
	assert.Equal(t, models.RoleAssistant, second.Message.Role)
}

func TestClose_RejectsSends(t *testing.T) {
	s := NewSession(&fakeChatAPI{}, newMemStore())
	require.NoError(t, s.Initialize())
	s.Close()
	s.Close()

	_, err := s.SendText(context.Background(), "late")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.Clear(ConfirmFunc(func(string) bool { return true }))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestClose_DropsInFlightReply(t *testing.T) {
	api := &fakeChatAPI{delay: time.Second}
	s := NewSession(api, newMemStore())
	require.NoError(t, s.Initialize())

	ch, err := s.SendText(context.Background(), "slow")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return api.callCount() == 1 }, time.Second, time.Millisecond)

	s.Close()
	_, open := <-ch
	assert.False(t, open)
	assert.Len(t, s.Messages(), 2)
}

func TestSend_BeforeInitialize(t *testing.T) {
	s := NewSession(&fakeChatAPI{}, newMemStore())
	defer s.Close()

	_, err := s.SendText(context.Background(), "hi")
	assert.Error(t, err)
}
