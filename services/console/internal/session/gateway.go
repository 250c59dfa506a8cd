package session

import (
	"context"

	"github.com/adminconsole/services/console/internal/gateway"
)

// gatewayAuth 网关所需的会话能力
type gatewayAuth struct {
	s *Store
}

func (a gatewayAuth) AccessToken() string { return a.s.AccessToken() }
func (a gatewayAuth) IsLoggedIn() bool    { return a.s.IsLoggedIn() }

func (a gatewayAuth) Refresh(ctx context.Context) error {
	_, err := a.s.Refresh(ctx)
	return err
}

func (a gatewayAuth) Logout(ctx context.Context) error {
	return a.s.Logout(ctx)
}

// Authenticator 供网关注入令牌与刷新会话
func (s *Store) Authenticator() gateway.Authenticator {
	return gatewayAuth{s: s}
}
