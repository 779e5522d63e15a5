// Package chat manages the TaxPadi chat transcript.
//
// A Session owns one linear transcript: it restores it from local storage,
// appends user messages optimistically, sends each request through a FIFO
// queue and appends the assistant reply (or a fallback when the request
// fails). Every change is written back to storage with attachments inlined
// as base64 data URLs.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxpadi-client/internal/db"
	"taxpadi-client/internal/models"
)

const (
	// TranscriptKey is the storage key holding the serialized transcript
	TranscriptKey = "taxpadi_chat_messages"

	DefaultGreeting = "Hello! I'm TaxPadi, your AI tax assistant. How can I help you with your tax needs today?"
	FallbackReply   = "Sorry, I'm having trouble connecting right now. Please try again in a moment."

	clearPrompt = "Clear the whole conversation?"
)

// ErrSessionClosed is returned when sending on a closed session
var ErrSessionClosed = errors.New("chat session closed")

// ChatAPI sends a message to the AI backend
type ChatAPI interface {
	Chat(ctx context.Context, message string, files []models.Attachment) (*models.ChatResponse, error)
}

// Store is the durable key/value slot the transcript lives in
type Store interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Confirmer asks the user to confirm a destructive action
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Session is one chat transcript and its send queue
type Session struct {
	api      ChatAPI
	store    Store
	greeting string
	now      func() time.Time
	renderer *Renderer

	ctx    context.Context
	cancel context.CancelFunc
	queue  *sendQueue
	events *broadcaster

	mu          sync.Mutex
	messages    []models.ChatMessage
	lastTS      int64
	initialized bool
	closed      bool
	// generation changes on Clear so replies to cleared messages are dropped
	generation uint64

	persistMu  sync.Mutex
	persistErr error
}

// Option configures a Session
type Option func(*Session)

// WithGreeting sets the message seeded into an empty transcript
func WithGreeting(greeting string) Option {
	return func(s *Session) {
		if greeting != "" {
			s.greeting = greeting
		}
	}
}

// WithClock sets the time source used for message timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithRenderer sets the renderer whose references are released on Clear and Close
func WithRenderer(r *Renderer) Option {
	return func(s *Session) {
		s.renderer = r
	}
}

// NewSession creates a session. Call Initialize before sending.
func NewSession(api ChatAPI, store Store, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		api:      api,
		store:    store,
		greeting: DefaultGreeting,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		events:   newBroadcaster(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.renderer == nil {
		s.renderer = NewRenderer("")
	}
	s.queue = newSendQueue()
	return s
}

// Initialize restores the persisted transcript, or seeds the greeting when
// there is none. Only the first call has any effect.
func (s *Session) Initialize() error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true

	restored, err := s.load()
	if err != nil {
		log.Printf("[Chat] Initialize could not restore transcript, seeding greeting err=%v", err)
	}
	if len(restored) == 0 {
		s.messages = []models.ChatMessage{s.greetingMessage()}
	} else {
		s.messages = restored
	}
	for _, m := range s.messages {
		s.lastTS = max(s.lastTS, m.Timestamp)
	}
	count := len(s.messages)
	s.mu.Unlock()

	log.Printf("[Chat] Initialize completed messages=%d restored=%t", count, len(restored) > 0)
	// an unreadable transcript stays in storage until the next change
	if err == nil {
		s.persist()
	}
	return err
}

func (s *Session) load() ([]models.ChatMessage, error) {
	raw, err := s.store.GetItem(TranscriptKey)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	return DecodeTranscript(raw)
}

// Messages returns a copy of the transcript
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Subscribe returns a channel of transcript events and a function that
// unsubscribes it
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := s.events.subscribe(32)
	return ch, func() { s.events.unsubscribe(ch) }
}

// Renderer returns the attachment renderer owned by the session
func (s *Session) Renderer() *Renderer {
	return s.renderer
}

// SendText sends a text message. See SendWithAttachments.
func (s *Session) SendText(ctx context.Context, text string) (<-chan models.ChatMessage, error) {
	return s.SendWithAttachments(ctx, text, nil)
}

// SendWithAttachments appends the user's message(s) immediately and queues
// one chat request. The returned channel receives the assistant reply (the
// fallback message on failure) and is then closed. With no text and no
// files nothing happens and the channel is already closed.
func (s *Session) SendWithAttachments(ctx context.Context, text string, files []models.Attachment) (<-chan models.ChatMessage, error) {
	reply := make(chan models.ChatMessage, 1)

	hasText := strings.TrimSpace(text) != ""
	if !hasText && len(files) == 0 {
		close(reply)
		return reply, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if !s.initialized {
		s.mu.Unlock()
		return nil, errors.New("chat session not initialized")
	}

	ts := s.nextTimestamp()
	if hasText {
		s.appendLocked(models.ChatMessage{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   text,
			Timestamp: ts,
		})
	}
	for i := range files {
		f := files[i]
		s.appendLocked(models.ChatMessage{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   fileContent(text, f.Name),
			Timestamp: ts + int64(i) + 1,
			File:      &f,
		})
	}
	s.lastTS = max(s.lastTS, ts+int64(len(files)))

	gen := s.generation
	queued := s.queue.push(func() {
		s.deliver(ctx, gen, text, files, reply)
	})
	s.mu.Unlock()

	if !queued {
		close(reply)
		return nil, ErrSessionClosed
	}

	log.Printf("[Chat] Send queued text_len=%d files=%d", len(text), len(files))
	s.persist()
	return reply, nil
}

// deliver runs on the queue worker
func (s *Session) deliver(ctx context.Context, gen uint64, text string, files []models.Attachment, reply chan<- models.ChatMessage) {
	defer close(reply)

	if s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	defer cancel()

	content := FallbackReply
	resp, err := s.api.Chat(ctx, text, files)
	if err != nil {
		log.Printf("[Chat] Send failed, appending fallback err=%v", err)
	} else {
		content = resp.Data.Response
		log.Printf("[Chat] Send completed response_len=%d", len(content))
	}

	s.mu.Lock()
	if s.generation != gen || s.closed {
		s.mu.Unlock()
		log.Printf("[Chat] Reply dropped, transcript was cleared")
		return
	}
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: s.nextTimestamp(),
	}
	s.appendLocked(msg)
	s.mu.Unlock()

	s.persist()
	reply <- msg
}

// SendVoice records one clip, normalizes it to 16 kHz mono WAV and sends it
// with no text. Nothing is sent when recording or normalization fails.
func (s *Session) SendVoice(ctx context.Context, rec Recorder) (<-chan models.ChatMessage, error) {
	clip, err := rec.Record(ctx)
	if err != nil {
		log.Printf("[Chat] SendVoice failed: record err=%v", err)
		return nil, fmt.Errorf("failed to record voice: %w", err)
	}

	voice, err := NormalizeVoice(clip, s.now())
	if err != nil {
		log.Printf("[Chat] SendVoice failed: normalize name=%s err=%v", clip.Name, err)
		return nil, err
	}

	return s.SendWithAttachments(ctx, "", []models.Attachment{voice})
}

// Clear resets the transcript to the greeting and erases persisted storage
// once c confirms. It reports whether the transcript was cleared.
func (s *Session) Clear(c Confirmer) (bool, error) {
	if c == nil || !c.Confirm(clearPrompt) {
		return false, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	s.generation++
	greeting := s.greetingMessage()
	s.lastTS = max(s.lastTS, greeting.Timestamp)
	s.messages = []models.ChatMessage{greeting}
	s.events.broadcast(Event{Type: EventCleared})
	s.events.broadcast(Event{Type: EventMessage, Message: &greeting})
	s.mu.Unlock()

	s.renderer.ReleaseAll()

	s.persistMu.Lock()
	err := s.store.RemoveItem(TranscriptKey)
	s.persistErr = err
	s.persistMu.Unlock()

	if err != nil {
		log.Printf("[Chat] Clear failed to erase transcript err=%v", err)
		return true, err
	}
	log.Printf("[Chat] Clear completed")
	return true, nil
}

// PersistError returns the error of the most recent failed write, or nil
// when the last write succeeded
func (s *Session) PersistError() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	return s.persistErr
}

// Close cancels outstanding requests, stops the queue, releases attachment
// references and closes subscriber channels
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.queue.close()
	s.renderer.ReleaseAll()
	s.events.closeAll()
	log.Printf("[Chat] Session closed")
}

// persist writes the current transcript. Failures are logged and recorded,
// never returned.
func (s *Session) persist() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	snapshot := make([]models.ChatMessage, len(s.messages))
	copy(snapshot, s.messages)
	s.mu.Unlock()

	encoded, err := EncodeTranscript(snapshot)
	if err == nil {
		err = s.store.SetItem(TranscriptKey, encoded)
	}
	if err != nil {
		log.Printf("[Chat] Persist failed messages=%d err=%v", len(snapshot), err)
		s.persistErr = err
		return
	}
	s.persistErr = nil
}

func (s *Session) appendLocked(m models.ChatMessage) {
	s.messages = append(s.messages, m)
	s.events.broadcast(Event{Type: EventMessage, Message: &m})
}

// nextTimestamp returns a millisecond timestamp strictly after every
// timestamp handed out so far
func (s *Session) nextTimestamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *Session) greetingMessage() models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   s.greeting,
		Timestamp: s.now().UnixMilli(),
	}
}

func fileContent(text, name string) string {
	if t := strings.TrimSpace(text); t != "" {
		return t + " 📎 Uploaded: " + name
	}
	return "📎 Uploaded: " + name
}
