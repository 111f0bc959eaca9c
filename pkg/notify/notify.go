package notify

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const defaultCapacity = 50

// Message is a user-facing notice (a toast in the UI).
type Message struct {
	Level enums.NotificationLevel `json:"level"`
	Title string                  `json:"title"`
	Body  string                  `json:"body,omitempty"`
	At    time.Time               `json:"at"`
}

// Notifier receives user-facing notices from the state core.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Feed logs every notice and keeps the most recent ones for the UI to poll.
type Feed struct {
	logg     *logger.Logger
	mu       sync.Mutex
	items    []Message
	capacity int
	now      func() time.Time
}

func NewFeed(logg *logger.Logger, capacity int) *Feed {
	if logg == nil {
		logg = logger.Nop()
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Feed{logg: logg, capacity: capacity, now: time.Now}
}

func (f *Feed) Notify(ctx context.Context, msg Message) {
	if msg.At.IsZero() {
		msg.At = f.now().UTC()
	}
	if !msg.Level.IsValid() {
		msg.Level = enums.NotificationLevelInfo
	}

	logCtx := f.logg.WithFields(ctx, map[string]any{
		"notice_level": msg.Level.String(),
		"notice_title": msg.Title,
	})
	if msg.Level == enums.NotificationLevelError {
		f.logg.Warn(logCtx, msg.Body)
	} else {
		f.logg.Info(logCtx, msg.Body)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, msg)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]Message(nil), f.items[over:]...)
	}
}

// Recent returns the retained notices, oldest first.
func (f *Feed) Recent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.items))
	copy(out, f.items)
	return out
}

func Success(title, body string) Message {
	return Message{Level: enums.NotificationLevelSuccess, Title: title, Body: body}
}

func Info(title, body string) Message {
	return Message{Level: enums.NotificationLevelInfo, Title: title, Body: body}
}

func Error(title, body string) Message {
	return Message{Level: enums.NotificationLevelError, Title: title, Body: body}
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(context.Context, Message) {}
