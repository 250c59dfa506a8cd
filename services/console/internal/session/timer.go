package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RefreshDelay 计算下一次自动刷新的等待时间：
// max(floor, min(expiresIn-lead, expiresIn-guard))，
// 结果不早于过期时刻时返回 false
func (s *Store) RefreshDelay(expiresIn int64) (time.Duration, bool) {
	return s.refreshDelay(time.Duration(expiresIn) * time.Second)
}

// refreshDelay 按剩余有效期计算
func (s *Store) refreshDelay(expiry time.Duration) (time.Duration, bool) {
	if expiry <= 0 {
		return 0, false
	}
	delay := min(expiry-s.opts.RefreshLead, expiry-s.opts.ExpiryGuard)
	delay = max(delay, s.opts.RefreshFloor)
	if delay >= expiry {
		return 0, false
	}
	return delay, true
}

// CheckAndRefreshToken 重新安排自动刷新，可重复调用。
// 等待时间按令牌剩余有效期计算，重复调用不会推迟刷新时刻
func (s *Store) CheckAndRefreshToken() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	if !s.opts.AutoRefresh || s.sess.AccessToken == "" {
		return
	}
	now := s.opts.Clock()
	remaining := time.Duration(s.sess.ExpiresIn) * time.Second
	if !s.issuedAt.IsZero() {
		remaining -= now.Sub(s.issuedAt)
	}
	delay, ok := s.refreshDelay(remaining)
	if !ok {
		return
	}

	gen := s.timerGen
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })
	s.due = now.Add(delay)
	s.log.Debug("token refresh scheduled", zap.Duration("delay", delay))
}

// TimerArmed 是否已安排自动刷新
func (s *Store) TimerArmed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timer != nil
}

// NextRefresh 下一次自动刷新的时刻
func (s *Store) NextRefresh() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.timer == nil {
		return time.Time{}, false
	}
	return s.due, true
}

func (s *Store) stopTimerLocked() {
	s.timerGen++
	s.due = time.Time{}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire 定时刷新，失败只记录日志
func (s *Store) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.due = time.Time{}
	refresher := s.opts.Refresher
	s.mu.Unlock()

	ctx := context.Background()
	var err error
	if refresher != nil {
		err = refresher.RefreshSession(ctx)
	} else {
		_, err = s.Refresh(ctx)
	}
	if err != nil {
		s.log.Warn("自动刷新令牌失败", zap.Error(err))
	}
}

// Stop 停止自动刷新
func (s *Store) Stop() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
}
