// Package errbus holds the process-wide error message shown on the banner.
package errbus

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is a single error slot. The last write wins.
type Bus struct {
	mu     sync.Mutex
	msg    string
	nextID int
	subs   map[int]func(string)
	logger *zap.Logger
}

// New returns an empty Bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[int]func(string)),
		logger: logger,
	}
}

// Set replaces the current message. An empty msg clears the slot.
func (b *Bus) Set(msg string) {
	b.mu.Lock()
	if b.msg == msg {
		b.mu.Unlock()
		return
	}
	b.msg = msg
	subs := b.snapshot()
	b.mu.Unlock()

	if msg != "" {
		b.logger.Info("global error set", zap.String("message", msg))
	} else {
		b.logger.Debug("global error cleared")
	}
	for _, fn := range subs {
		fn(msg)
	}
}

// Clear empties the slot.
func (b *Bus) Clear() {
	b.Set("")
}

// Navigate is called whenever the user moves to another command or view.
func (b *Bus) Navigate() {
	b.Clear()
}

// Current returns the message and whether one is set.
func (b *Bus) Current() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.msg, b.msg != ""
}

// Subscribe registers fn to be called after every change with the new
// message ("" when cleared). fn runs on the writer's goroutine.
func (b *Bus) Subscribe(fn func(msg string)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Bus) snapshot() []func(string) {
	out := make([]func(string), 0, len(b.subs))
	for _, fn := range b.subs {
		out = append(out, fn)
	}
	return out
}
