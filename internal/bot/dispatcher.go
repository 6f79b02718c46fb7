// Package bot turns forwarded channel posts into capture requests and sends
// exactly one reply per handled forward.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mohammad-safakhou/postshot/internal/capture"
	"github.com/mohammad-safakhou/postshot/internal/dedup"
	"golang.org/x/sync/errgroup"
)

// Reply texts. No internal detail ever reaches the chat.
const (
	TextNotChannelPost = "This message is not a valid forwarded channel post."
	TextCaptureFailed  = "Failed to capture the screenshot. Please try again."
	TextPostNotFound   = "Could not capture this post. It may have been deleted or is not public."
	TextHelp           = "Forward me a post from a public channel and I will reply with a screenshot of it."
)

var (
	ErrNotForwarded   = errors.New("message is not a forward")
	ErrNotChannelPost = errors.New("forward does not come from a public channel post")
)

// Sender is the part of *tgbotapi.BotAPI the dispatcher needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dispatcher handles updates. It owns the dedup state it is given.
type Dispatcher struct {
	sender   Sender
	capturer capture.Capturer
	seen     dedup.Store
	logger   *log.Logger
}

func NewDispatcher(sender Sender, capturer capture.Capturer, seen dedup.Store, logger *log.Logger) *Dispatcher {
	if seen == nil {
		seen = dedup.NewMemoryStore()
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[BOT] ", log.LstdFlags)
	}
	return &Dispatcher{sender: sender, capturer: capturer, seen: seen, logger: logger}
}

// RequestFromMessage builds a capture request from a forwarded channel post.
func RequestFromMessage(msg *tgbotapi.Message) (capture.Request, error) {
	if msg == nil || msg.ForwardDate == 0 {
		return capture.Request{}, ErrNotForwarded
	}
	origin := msg.ForwardFromChat
	if origin == nil || !origin.IsChannel() || msg.ForwardFromMessageID == 0 || origin.UserName == "" {
		return capture.Request{}, ErrNotChannelPost
	}
	req, err := capture.NewRequest(origin.UserName, msg.ForwardFromMessageID)
	if err != nil {
		return capture.Request{}, fmt.Errorf("%w: %v", ErrNotChannelPost, err)
	}
	return req, nil
}

// Handle processes one update. Errors are already logged; they are returned
// for callers that care.
func (d *Dispatcher) Handle(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	if msg.ForwardDate == 0 {
		if msg.IsCommand() && (msg.Command() == "start" || msg.Command() == "help") {
			return d.replyText(msg, TextHelp)
		}
		return nil
	}

	origin := time.Unix(int64(msg.ForwardDate), 0)
	dup, err := d.seen.Seen(ctx, msg.Chat.ID, origin)
	if err != nil {
		// Losing dedup only risks a second reply, keep going.
		d.logger.Printf("chat %d: dedup lookup failed: %v", msg.Chat.ID, err)
	}
	if dup {
		d.logger.Printf("chat %d: duplicate forward (origin %d), ignoring", msg.Chat.ID, msg.ForwardDate)
		return nil
	}

	req, err := RequestFromMessage(msg)
	if err != nil {
		d.logger.Printf("chat %d: %v", msg.Chat.ID, err)
		return d.replyText(msg, TextNotChannelPost)
	}

	d.logger.Printf("chat %d: capturing %s", msg.Chat.ID, req.EmbedURL())
	out := d.capturer.Capture(ctx, req)
	if !out.OK() {
		return d.replyText(msg, failureText(out.Failure))
	}
	return d.replyPhoto(msg, out)
}

func failureText(f *capture.Failure) string {
	if f != nil && f.Kind == capture.FailureElementNotFound {
		return TextPostNotFound
	}
	return TextCaptureFailed
}

func (d *Dispatcher) replyText(msg *tgbotapi.Message, text string) error {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := d.sender.Send(reply); err != nil {
		d.logger.Printf("chat %d: send text: %v", msg.Chat.ID, err)
		return err
	}
	return nil
}

func (d *Dispatcher) replyPhoto(msg *tgbotapi.Message, out capture.Outcome) error {
	name := fmt.Sprintf("%s-%d%s", out.Request.Channel(), out.Request.MessageID(), out.Image.Format.Extension())
	photo := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FileBytes{Name: name, Bytes: out.Image.Data})
	photo.Caption = out.Caption()
	photo.ReplyToMessageID = msg.MessageID
	if _, err := d.sender.Send(photo); err != nil {
		d.logger.Printf("chat %d: send photo: %v", msg.Chat.ID, err)
		return err
	}
	return nil
}

// Run handles updates until ctx is cancelled or updates is closed, with at
// most workers handlers running at once.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case u, ok := <-updates:
			if !ok {
				break loop
			}
			g.Go(func() error {
				_ = d.Handle(ctx, u)
				return nil
			})
		}
	}
	if ctx.Err() != nil {
		// The poller may be blocked sending into a full channel and would
		// never notice it was stopped. Drop what is left until it closes.
		go func() {
			for range updates {
			}
		}()
	}
	_ = g.Wait()
	return ctx.Err()
}
