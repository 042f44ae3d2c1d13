package service

import "sync"

type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is one transient message for the operator.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// NoticeBox collects notices until the transport layer drains them into a
// response. It implements ports.Notifier.
type NoticeBox struct {
	mu      sync.Mutex
	pending []Notice
}

func NewNoticeBox() *NoticeBox {
	return &NoticeBox{}
}

func (b *NoticeBox) Success(msg string) { b.push(NoticeSuccess, msg) }

func (b *NoticeBox) Error(msg string) { b.push(NoticeError, msg) }

func (b *NoticeBox) push(level NoticeLevel, msg string) {
	b.mu.Lock()
	b.pending = append(b.pending, Notice{Level: level, Message: msg})
	b.mu.Unlock()
}

// Drain returns the queued notices in order and empties the box.
func (b *NoticeBox) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}
