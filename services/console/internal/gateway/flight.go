package gateway

import (
	"context"
	"sync"
)

// Flight 令牌刷新的单飞协调器
//
// 同一时刻最多只有一次刷新在进行。刷新期间遇到401的请求领取一张票排队，
// 刷新成功后按领票顺序逐个放行重放；前一张票写出请求（或调用结束）后
// 才放行下一张。刷新失败时所有排队请求一起失败。
type Flight struct {
	mu      sync.Mutex
	current *call
	fn      func(ctx context.Context) error
	flights int
}

type call struct {
	done  chan struct{}
	err   error
	queue []*Ticket
	next  int
	fail  sync.Once
}

// Ticket 排队凭证
type Ticket struct {
	f         *Flight
	c         *call
	turn      chan struct{}
	granted   bool
	abandoned bool
	release   sync.Once
}

// NewFlight 创建协调器，fn 为实际的刷新操作
func NewFlight(fn func(ctx context.Context) error) *Flight {
	return &Flight{fn: fn}
}

// startLocked 开始一次新的刷新，调用方需持有锁
func (f *Flight) startLocked(ctx context.Context) *call {
	c := &call{done: make(chan struct{})}
	f.current = c
	f.flights++
	// 排队请求被放弃不应取消进行中的刷新
	go f.run(context.WithoutCancel(ctx), c)
	return c
}

func (f *Flight) run(ctx context.Context, c *call) {
	err := f.fn(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	c.err = err
	if f.current == c {
		f.current = nil
	}
	close(c.done)
	if err == nil {
		f.grantLocked(c)
	}
}

// grantLocked 放行下一张未被放弃的票
func (f *Flight) grantLocked(c *call) {
	for c.next < len(c.queue) {
		t := c.queue[c.next]
		c.next++
		if t.abandoned {
			continue
		}
		t.granted = true
		close(t.turn)
		return
	}
}

// Enqueue 领取一张票，没有进行中的刷新时由本次调用发起
func (f *Flight) Enqueue(ctx context.Context) *Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.current
	if c == nil {
		c = f.startLocked(ctx)
	}
	t := &Ticket{f: f, c: c, turn: make(chan struct{})}
	c.queue = append(c.queue, t)
	return t
}

// Do 加入或发起一次刷新并等待结果，不参与排队重放
func (f *Flight) Do(ctx context.Context) error {
	f.mu.Lock()
	c := f.current
	if c == nil {
		c = f.startLocked(ctx)
	}
	f.mu.Unlock()

	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight 是否有刷新正在进行
func (f *Flight) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current != nil
}

// Flights 累计发起的刷新次数
func (f *Flight) Flights() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flights
}

// Wait 等待刷新结束并轮到自己。刷新失败时返回刷新的错误，
// ctx 结束时放弃排队并返回 ctx 的错误
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.c.done:
	case <-ctx.Done():
		t.abandon()
		return ctx.Err()
	}
	if t.c.err != nil {
		return t.c.err
	}

	select {
	case <-t.turn:
		return nil
	case <-ctx.Done():
		t.abandon()
		return ctx.Err()
	}
}

// Release 放行下一张票，多次调用只生效一次
func (t *Ticket) Release() {
	t.release.Do(func() {
		t.f.mu.Lock()
		defer t.f.mu.Unlock()
		if t.granted {
			t.f.grantLocked(t.c)
		}
	})
}

// Fail 刷新失败后的收尾动作，同一次刷新的所有票只执行一次
func (t *Ticket) Fail(fn func()) {
	t.c.fail.Do(fn)
}

func (t *Ticket) abandon() {
	t.f.mu.Lock()
	t.abandoned = true
	granted := t.granted
	t.f.mu.Unlock()
	if granted {
		t.Release()
	}
}
