package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"taxpadi-client/internal/chat"
	"taxpadi-client/internal/models"
)

const chatHelp = `Commands:
  /file <path>... [-- message]   send files, optionally with a message
  /voice <wav>                   send a recorded WAV clip
  /open <n>                      open the attachment of message n
  /history                       show the whole transcript
  /clear                         delete the conversation
  /quit                          leave`

// chatView prints the transcript, numbering messages by their position in
// it. Events only signal that something changed, so a dropped event never
// shifts the numbers.
type chatView struct {
	term   *terminal
	sess   *chat.Session
	shown  int
	lastID string
}

func (v *chatView) show(n int, m models.ChatMessage) {
	who := "You"
	if m.Role == models.RoleAssistant {
		who = "TaxPadi"
	}
	stamp := time.UnixMilli(m.Timestamp).Format("15:04")
	v.term.printf("[%d] %s %s: %s\n", n, stamp, who, m.Content)
}

// render prints every message not shown yet. A transcript that no longer
// starts with what was shown has been cleared.
func (v *chatView) render() {
	msgs := v.sess.Messages()
	if v.shown > len(msgs) || (v.shown > 0 && msgs[v.shown-1].ID != v.lastID) {
		v.cleared()
	}
	for i := v.shown; i < len(msgs); i++ {
		v.show(i+1, msgs[i])
		v.lastID = msgs[i].ID
	}
	v.shown = len(msgs)
}

func (v *chatView) cleared() {
	v.shown = 0
	v.lastID = ""
	v.term.println("-- conversation cleared --")
}

// drain consumes every event already delivered without blocking, then
// renders the transcript
func (v *chatView) drain(events <-chan chat.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				v.render()
				return
			}
			if ev.Type == chat.EventCleared {
				v.cleared()
			}
		default:
			v.render()
			return
		}
	}
}

func (a *app) runChat(ctx context.Context) error {
	sess := chat.NewSession(a.api, a.db, chat.WithGreeting(a.cfg.Greeting))
	defer sess.Close()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	if err := sess.Initialize(); err != nil {
		a.term.println("Your previous conversation could not be restored.")
	}

	view := &chatView{term: a.term, sess: sess}
	view.render()
	a.term.println(`Type a message, or /help for commands.`)

	for {
		line, err := a.term.ask("> ")
		if err != nil {
			return err
		}

		reply, done, err := a.chatCommand(ctx, sess, line)
		if done {
			return nil
		}
		if err != nil {
			a.term.printf("Error: %v\n", err)
		}
		view.drain(events)

		if reply != nil {
			select {
			case <-reply:
			case <-ctx.Done():
				return ctx.Err()
			}
			view.drain(events)
		}

		if err := sess.PersistError(); err != nil {
			a.term.println("Warning: the conversation could not be saved.")
		}
	}
}

// chatCommand runs one line of input. It returns the reply channel of a
// send, and done when the user asked to leave.
func (a *app) chatCommand(ctx context.Context, sess *chat.Session, line string) (<-chan models.ChatMessage, bool, error) {
	if !strings.HasPrefix(line, "/") {
		reply, err := sess.SendText(ctx, line)
		return reply, false, err
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return nil, true, nil

	case "/help":
		a.term.println(chatHelp)

	case "/history":
		for i, m := range sess.Messages() {
			a.term.printf("[%d] %s: %s\n", i+1, m.Role, m.Content)
		}

	case "/file":
		paths, text := splitFileArgs(rest)
		if len(paths) == 0 {
			return nil, false, errors.New("usage: /file <path>... [-- message]")
		}
		files := make([]models.Attachment, 0, len(paths))
		for _, p := range paths {
			f, err := readAttachment(p)
			if err != nil {
				return nil, false, err
			}
			files = append(files, f)
		}
		reply, err := sess.SendWithAttachments(ctx, text, files)
		return reply, false, err

	case "/voice":
		if rest == "" {
			return nil, false, errors.New("usage: /voice <wav>")
		}
		reply, err := sess.SendVoice(ctx, chat.FileRecorder{Path: rest})
		return reply, false, err

	case "/open":
		return nil, false, a.openAttachment(sess, rest)

	case "/clear":
		cleared, err := sess.Clear(chat.ConfirmFunc(a.term.confirm))
		if err != nil {
			return nil, false, err
		}
		if !cleared {
			a.term.println("Kept the conversation.")
		}

	default:
		return nil, false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil, false, nil
}

func (a *app) openAttachment(sess *chat.Session, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return errors.New("usage: /open <n>")
	}
	msgs := sess.Messages()
	if n < 1 || n > len(msgs) {
		return fmt.Errorf("no message %d", n)
	}

	ref, err := sess.Renderer().Open(msgs[n-1])
	if errors.Is(err, chat.ErrNoAttachment) {
		return fmt.Errorf("message %d has no attachment in this session", n)
	}
	if err != nil {
		return err
	}

	switch ref.Kind {
	case models.AttachmentAudio:
		a.term.printf("Audio %s ready to play: %s\n", ref.Name, ref.Path)
	case models.AttachmentImage:
		a.term.printf("Image %s: %s\n", ref.Name, ref.Path)
	case models.AttachmentPDF:
		a.term.printf("PDF %s: %s\n", ref.Name, ref.Path)
	default:
		a.term.printf("Saved %s to %s\n", ref.Name, ref.Path)
	}
	return nil
}

// splitFileArgs separates "a.pdf b.png -- some text" into paths and text
func splitFileArgs(s string) ([]string, string) {
	head, text, _ := strings.Cut(s, "--")
	return strings.Fields(head), strings.TrimSpace(text)
}

func readAttachment(path string) (models.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	typ := mime.TypeByExtension(filepath.Ext(path))
	if typ == "" {
		typ = http.DetectContentType(data)
	}
	log.Printf("[CLI] Attachment read name=%s type=%s size=%d", filepath.Base(path), typ, len(data))

	return models.Attachment{
		Name: filepath.Base(path),
		Type: typ,
		Data: data,
	}, nil
}
