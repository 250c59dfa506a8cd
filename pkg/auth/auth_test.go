package auth

import (
	"testing"
	"time"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{Secret: "s", Issuer: "devapi", Expire: 60})
	info, err := m.CreateTokenInfo(7, "admin", []string{"admin"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", info.TokenType)
	assert.EqualValues(t, 60, info.ExpiresIn)

	claims, err := m.ParseToken(info.AccessToken)
	require.NoError(t, err)
	assert.EqualValues(t, 7, claims.UserID)
	assert.EqualValues(t, 3, claims.Generation)
	assert.Equal(t, []string{"admin"}, claims.Roles)

	_, err = m.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestJWTExpired(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{Secret: "s", Expire: 60})
	m.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, err := m.GenerateToken(1, "a", nil, 0)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ParseToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRSAEncryptDecrypt(t *testing.T) {
	kp, err := GenerateKeyPair(1024)
	require.NoError(t, err)
	pub, err := kp.PublicKey()
	require.NoError(t, err)

	cipher, err := RSAEncryptor{}.Encrypt(pub, "admin123")
	require.NoError(t, err)
	plain, err := kp.Decrypt(cipher)
	require.NoError(t, err)
	assert.Equal(t, "admin123", plain)

	pemKey := pemPublicHeader + "\n" + pub + "\n" + pemPublicFooter
	_, err = ParsePublicKey(pemKey)
	assert.NoError(t, err)

	_, err = RSAEncryptor{}.Encrypt("garbage", "x")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "admin123"))
	assert.False(t, CheckPassword(hash, "nope"))
}

func TestCasbinRolePermissions(t *testing.T) {
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	svc, err := NewCasbinService(db, MenuModel)
	require.NoError(t, err)
	require.NoError(t, svc.AddPermission("role:ops", "system:admin:query"))
	require.NoError(t, svc.AddPermission("role:admin", "*"))
	require.NoError(t, svc.SetUserRoles("user:2", "role:ops"))
	require.NoError(t, svc.SetUserRoles("user:1", "role:admin"))

	assert.True(t, svc.HasPermission("user:2", "system:admin:query"))
	assert.False(t, svc.HasPermission("user:2", "system:admin:add"))
	assert.True(t, svc.HasPermission("user:1", "system:admin:add"))

	perms, err := svc.GetPermissionsForUser("user:2")
	require.NoError(t, err)
	assert.Equal(t, []string{"system:admin:query"}, perms)
}
