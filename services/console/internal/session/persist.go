package session

import (
	"context"
	"strconv"
	"time"

	"github.com/adminconsole/pkg/storage"
	"github.com/adminconsole/services/console/internal/menu"
	"go.uber.org/zap"
)

// 持久化键，实际存储时带命名空间前缀
const (
	KeyToken        = "token"
	KeyUserID       = "userId"
	KeyUsername     = "username"
	KeyNickName     = "nickName"
	KeyExpiresIn    = "expiresIn"
	KeyRefreshToken = "refreshToken"
	KeyRoles        = "roles"
	KeyIssuedAt     = "issuedAt"
	KeyPermissions  = menu.KeyPermissions // 由菜单状态写入，会话只读取
)

var persistedKeys = []string{
	KeyToken, KeyUserID, KeyUsername, KeyNickName,
	KeyExpiresIn, KeyRefreshToken, KeyRoles, KeyIssuedAt, KeyPermissions,
}

// persist 写入会话字段，失败只记录日志
func (s *Store) persist(ctx context.Context, sess Session, issuedAt time.Time) {
	st := s.opts.Storage
	values := map[string]string{
		KeyToken:     sess.AccessToken,
		KeyUserID:    strconv.FormatInt(sess.UserID, 10),
		KeyUsername:  sess.Username,
		KeyNickName:  sess.NickName,
		KeyExpiresIn: strconv.FormatInt(sess.ExpiresIn, 10),
		KeyIssuedAt:  strconv.FormatInt(issuedAt.UnixMilli(), 10),
	}
	for k, v := range values {
		if err := st.Set(ctx, k, v); err != nil {
			s.log.Warn("保存会话失败", zap.String("key", k), zap.Error(err))
		}
	}

	if sess.RefreshToken != "" {
		if err := st.Set(ctx, KeyRefreshToken, sess.RefreshToken); err != nil {
			s.log.Warn("保存会话失败", zap.String("key", KeyRefreshToken), zap.Error(err))
		}
	}
	if err := storage.SetJSON(ctx, st, KeyRoles, nonNil(sess.Roles)); err != nil {
		s.log.Warn("保存会话失败", zap.String("key", KeyRoles), zap.Error(err))
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// load 读取持久化的会话与签发时刻，令牌缺失时返回空会话
func load(ctx context.Context, st storage.Store) (Session, time.Time, error) {
	var sess Session
	var issuedAt time.Time
	token, ok, err := st.Get(ctx, KeyToken)
	if err != nil || !ok || token == "" {
		return sess, issuedAt, err
	}
	sess.AccessToken = token

	if v, ok, err := st.Get(ctx, KeyRefreshToken); err == nil && ok {
		sess.RefreshToken = v
	}
	if v, ok, err := st.Get(ctx, KeyUsername); err == nil && ok {
		sess.Username = v
	}
	if v, ok, err := st.Get(ctx, KeyNickName); err == nil && ok {
		sess.NickName = v
	}
	if v, ok, err := st.Get(ctx, KeyUserID); err == nil && ok {
		sess.UserID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok, err := st.Get(ctx, KeyExpiresIn); err == nil && ok {
		sess.ExpiresIn, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok, err := st.Get(ctx, KeyIssuedAt); err == nil && ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			issuedAt = time.UnixMilli(ms)
		}
	}
	// 角色与权限损坏时按空处理
	_, _ = storage.GetJSON(ctx, st, KeyRoles, &sess.Roles)
	_, _ = storage.GetJSON(ctx, st, KeyPermissions, &sess.Permissions)
	return sess, issuedAt, nil
}

// erase 删除所有会话键
func erase(ctx context.Context, st storage.Store, log *zap.Logger) {
	if err := st.Delete(ctx, persistedKeys...); err != nil {
		log.Warn("清除会话失败", zap.Error(err))
	}
}
