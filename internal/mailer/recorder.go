package mailer

import (
	"context"
	"sync"

	"incorvix/backend/internal/domain"
)

// Recorder 记录发送调用的内存传输，用于测试与本地演示
//
// FailKinds 中列出的消息类别会返回 Err（默认为 rejected 类 TransportError）。
type Recorder struct {
	mu        sync.Mutex
	Messages  []*domain.ComposedMessage
	FailKinds map[domain.MessageKind]bool
	Err       error
	// BeforeSend 在每次发送前调用，可用于模拟阻塞
	BeforeSend func(ctx context.Context) error
}

// NewRecorder 创建记录传输
func NewRecorder() *Recorder {
	return &Recorder{FailKinds: make(map[domain.MessageKind]bool)}
}

// Name 传输方式名称
func (r *Recorder) Name() string { return "recorder" }

// Send 记录消息并按配置返回结果
func (r *Recorder) Send(ctx context.Context, msg *domain.ComposedMessage) error {
	if r.BeforeSend != nil {
		if err := r.BeforeSend(ctx); err != nil {
			return &domain.TransportError{Method: r.Name(), Kind: domain.TransportConnection, Err: err}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
	if r.FailKinds[msg.Kind] {
		if r.Err != nil {
			return r.Err
		}
		return &domain.TransportError{Method: r.Name(), Kind: domain.TransportRejected, Err: errRecorderRejected}
	}
	return nil
}

// Count 返回指定类别的发送调用次数
func (r *Recorder) Count(kind domain.MessageKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.Messages {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// Total 全部发送调用次数
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Messages)
}

// Last 返回最近一次发送的指定类别消息
func (r *Recorder) Last(kind domain.MessageKind) *domain.ComposedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Kind == kind {
			return r.Messages[i]
		}
	}
	return nil
}

type recorderError string

func (e recorderError) Error() string { return string(e) }

const errRecorderRejected = recorderError("550 simulated rejection")
