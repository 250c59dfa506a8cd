package notify

import (
	"sync"

	"go.uber.org/zap"
)

// Level 提示级别
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarn    Level = "warning"
	LevelError   Level = "error"
)

// Notifier 面向用户的提示服务
type Notifier interface {
	Success(msg string)
	Warn(msg string)
	Error(msg string)
}

// ZapNotifier 将提示写入日志
type ZapNotifier struct {
	log *zap.Logger
}

// NewZap 创建日志提示器
func NewZap(log *zap.Logger) *ZapNotifier {
	return &ZapNotifier{log: log.Named("notify")}
}

func (n *ZapNotifier) Success(msg string) { n.log.Info(msg, zap.String("level", string(LevelSuccess))) }
func (n *ZapNotifier) Warn(msg string)    { n.log.Warn(msg) }
func (n *ZapNotifier) Error(msg string)   { n.log.Error(msg) }

// Message 一条提示
type Message struct {
	Level Level
	Text  string
}

// Recorder 记录所有提示，可选地转发给下游
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	next     Notifier
}

// NewRecorder 创建记录器，next 可为空
func NewRecorder(next Notifier) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Level: level, Text: msg})
	r.mu.Unlock()
}

func (r *Recorder) Success(msg string) {
	r.add(LevelSuccess, msg)
	if r.next != nil {
		r.next.Success(msg)
	}
}

func (r *Recorder) Warn(msg string) {
	r.add(LevelWarn, msg)
	if r.next != nil {
		r.next.Warn(msg)
	}
}

func (r *Recorder) Error(msg string) {
	r.add(LevelError, msg)
	if r.next != nil {
		r.next.Error(msg)
	}
}

// Messages 返回记录的副本
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Count 统计某条提示出现的次数
func (r *Recorder) Count(level Level, text string) int {
	n := 0
	for _, m := range r.Messages() {
		if m.Level == level && m.Text == text {
			n++
		}
	}
	return n
}

// Drain 返回并清空记录
func (r *Recorder) Drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	return out
}
