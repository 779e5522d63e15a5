package chat

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"taxpadi-client/internal/models"
)

// ErrNoAttachment is returned when opening a message without a file
var ErrNoAttachment = errors.New("message has no attachment")

// Reference is a temporary, revocable handle on an attachment's bytes
type Reference struct {
	MessageID string
	Path      string
	Name      string
	Type      string
	Kind      models.AttachmentKind
}

// Renderer materializes attachments as temporary files so they can be
// played, viewed or downloaded. Each message holds at most one reference;
// references must be released when the message goes away.
type Renderer struct {
	dir string

	mu   sync.Mutex
	refs map[string]rendered
}

// rendered is a live reference plus the digest of the bytes behind it
type rendered struct {
	Reference
	sum [sha256.Size]byte
}

// NewRenderer creates a renderer writing under dir (the system temp dir when empty)
func NewRenderer(dir string) *Renderer {
	return &Renderer{
		dir:  dir,
		refs: make(map[string]rendered),
	}
}

// Open returns the reference for msg's attachment, creating it on first use.
// Opening a message whose attachment changed (name, type or bytes) replaces
// the old reference.
func (r *Renderer) Open(msg models.ChatMessage) (Reference, error) {
	if !msg.HasFile() {
		return Reference{}, ErrNoAttachment
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sum := sha256.Sum256(msg.File.Data)
	if cur, ok := r.refs[msg.ID]; ok {
		if cur.Name == msg.File.Name && cur.Type == msg.File.Type && cur.sum == sum {
			return cur.Reference, nil
		}
		r.releaseLocked(msg.ID)
	}

	if r.dir != "" {
		if err := os.MkdirAll(r.dir, 0755); err != nil {
			return Reference{}, fmt.Errorf("failed to create attachment directory: %w", err)
		}
	}

	f, err := os.CreateTemp(r.dir, "taxpadi-*-"+safeName(msg.File.Name))
	if err != nil {
		return Reference{}, fmt.Errorf("failed to create attachment file: %w", err)
	}
	if _, err := f.Write(msg.File.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return Reference{}, fmt.Errorf("failed to write attachment file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return Reference{}, fmt.Errorf("failed to close attachment file: %w", err)
	}

	ref := Reference{
		MessageID: msg.ID,
		Path:      f.Name(),
		Name:      msg.File.Name,
		Type:      msg.File.Type,
		Kind:      models.ClassifyAttachment(msg.File.Type),
	}
	r.refs[msg.ID] = rendered{Reference: ref, sum: sum}
	log.Printf("[Chat] Attachment opened message_id=%s kind=%s path=%s", msg.ID, ref.Kind, ref.Path)
	return ref, nil
}

// Release revokes the reference held for messageID
func (r *Renderer) Release(messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseLocked(messageID)
}

// ReleaseAll revokes every reference
func (r *Renderer) ReleaseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id := range r.refs {
		errs = append(errs, r.releaseLocked(id))
	}
	return errors.Join(errs...)
}

// Len returns the number of live references
func (r *Renderer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

func (r *Renderer) releaseLocked(messageID string) error {
	ref, ok := r.refs[messageID]
	if !ok {
		return nil
	}
	delete(r.refs, messageID)

	if err := os.Remove(ref.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Chat] Attachment release failed message_id=%s err=%v", messageID, err)
		return err
	}
	return nil
}

// safeName keeps the base name and extension usable in a temp file pattern
func safeName(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '*', '/', '\\':
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "" {
		return "attachment"
	}
	return name
}
