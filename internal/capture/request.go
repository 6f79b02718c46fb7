package capture

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const postHost = "t.me"

var (
	ErrInvalidChannel = errors.New("invalid channel handle")
	ErrInvalidMessage = errors.New("invalid message id")
	ErrInvalidPostURL = errors.New("not a channel post url")
)

var channelRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// Request identifies one public channel post. The zero value is not usable;
// build one with NewRequest or ParseRequest.
type Request struct {
	channel   string
	messageID int
}

// NewRequest validates a channel handle (without the leading @) and a
// message id.
func NewRequest(channel string, messageID int) (Request, error) {
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "@")
	if !channelRe.MatchString(channel) {
		return Request{}, fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	if messageID <= 0 {
		return Request{}, fmt.Errorf("%w: %d", ErrInvalidMessage, messageID)
	}
	return Request{channel: channel, messageID: messageID}, nil
}

// ParseRequest accepts canonical and embed post links, e.g.
// https://t.me/examplechannel/42/ or https://t.me/examplechannel/42/?embed=1&mode=tme.
// The /s/ web preview form and telegram.me links are accepted too.
func ParseRequest(raw string) (Request, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Request{}, fmt.Errorf("%w: empty", ErrInvalidPostURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidPostURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Request{}, fmt.Errorf("%w: scheme %q", ErrInvalidPostURL, u.Scheme)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != postHost && host != "telegram.me" {
		return Request{}, fmt.Errorf("%w: host %q", ErrInvalidPostURL, u.Hostname())
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) == 3 && parts[0] == "s" {
		parts = parts[1:]
	}
	if len(parts) != 2 {
		return Request{}, fmt.Errorf("%w: path %q", ErrInvalidPostURL, u.Path)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return Request{}, fmt.Errorf("%w: %q", ErrInvalidMessage, parts[1])
	}
	return NewRequest(parts[0], id)
}

func (r Request) Channel() string { return r.channel }
func (r Request) MessageID() int  { return r.messageID }

// IsZero reports whether r was never initialised.
func (r Request) IsZero() bool { return r.channel == "" }

// EmbedURL is the widget rendering of the post, the page that gets captured.
func (r Request) EmbedURL() string {
	return fmt.Sprintf("https://%s/%s/%d/?embed=1&mode=tme", postHost, r.channel, r.messageID)
}

// CanonicalURL is the public link sent back as the caption.
func (r Request) CanonicalURL() string {
	return fmt.Sprintf("https://%s/%s/%d/", postHost, r.channel, r.messageID)
}

func (r Request) String() string { return r.CanonicalURL() }
