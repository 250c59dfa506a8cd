package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adminconsole/pkg/notify"
	"github.com/adminconsole/services/console/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "message": "ok", "data": data})
}

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	gw := gateway.New(GatewayOptions(gateway.Options{BaseURL: srv.URL, Notifier: notify.NewRecorder(nil)}))
	return New(gw, "console", "secret")
}

func TestNormalizeToken(t *testing.T) {
	p, err := NormalizeToken(map[string]interface{}{
		"access_token":  "a1",
		"token_type":    "Bearer",
		"expires_in":    "7200",
		"refresh_token": "r1",
		"user_id":       float64(7),
		"username":      "admin",
		"nick_name":     "管理员",
	})
	require.NoError(t, err)
	assert.Equal(t, &TokenPayload{
		AccessToken: "a1", TokenType: "Bearer", ExpiresIn: 7200, RefreshToken: "r1",
		UserID: 7, Username: "admin", NickName: "管理员",
	}, p)

	// 驼峰优先
	p, err = NormalizeToken(map[string]interface{}{"accessToken": "camel", "access_token": "snake", "nickname": "n"})
	require.NoError(t, err)
	assert.Equal(t, "camel", p.AccessToken)
	assert.Equal(t, "n", p.NickName)
	assert.Zero(t, p.ExpiresIn)
}

func TestPublicKeyShapes(t *testing.T) {
	var asObject bool
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathPublicKey, r.URL.Path)
		if asObject {
			writeEnvelope(w, map[string]string{"publicKey": "obj-key"})
			return
		}
		writeEnvelope(w, "plain-key")
	})

	key, err := c.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "plain-key", key)

	asObject = true
	key, err = c.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "obj-key", key)
}

func TestLoginBySmsSendsFormAndBasic(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSmsLogin, r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "console", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, GrantSms, r.PostForm.Get("grant_type"))
		assert.Equal(t, "13800000000", r.PostForm.Get("phone"))
		assert.Equal(t, "123456", r.PostForm.Get("code"))
		assert.Equal(t, SceneAdmin, r.PostForm.Get("scene"))
		assert.Equal(t, SceneAdmin, r.PostForm.Get("scope"))
		writeEnvelope(w, map[string]interface{}{"access_token": "sms-token", "expires_in": 60})
	})

	p, err := c.LoginBySms(context.Background(), &SmsLoginRequest{Phone: "13800000000", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "sms-token", p.AccessToken)
	assert.Equal(t, int64(60), p.ExpiresIn)
}

func TestRefreshBody(t *testing.T) {
	var bodies []map[string]string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		writeEnvelope(w, map[string]interface{}{"accessToken": "n"})
	})

	_, err := c.Refresh(context.Background(), "rt")
	require.NoError(t, err)
	_, err = c.Refresh(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.Equal(t, "rt", bodies[0]["refreshToken"])
	assert.Nil(t, bodies[1])
}

func TestCurrentUserInfoAndCall(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathCurrentUser:
			writeEnvelope(w, map[string]interface{}{
				"userId": 1, "username": "admin", "roles": []string{"admin"},
				"menus": []map[string]interface{}{{"id": 1, "menuName": "系统", "menuType": "M"}},
			})
		case "/sms/role/page":
			assert.Equal(t, http.MethodPost, r.Method)
			writeEnvelope(w, map[string]interface{}{"total": 2})
		}
	})

	info, err := c.CurrentUserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.UserID)
	assert.Equal(t, []string{"admin"}, info.Roles)
	require.Len(t, info.Menus, 1)
	assert.Equal(t, "系统", info.Menus[0].MenuName)

	raw, err := c.Call(context.Background(), "post", "/sms/role/page", nil, map[string]int{"current": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":2}`, string(raw))
}
