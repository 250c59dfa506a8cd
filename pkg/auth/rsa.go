package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const (
	pemPublicHeader = "-----BEGIN PUBLIC KEY-----"
	pemPublicFooter = "-----END PUBLIC KEY-----"
)

// ErrInvalidPublicKey 公钥无法解析
var ErrInvalidPublicKey = errors.New("invalid rsa public key")

// Encryptor 使用服务端下发的公钥加密密码
type Encryptor interface {
	Encrypt(publicKey, plaintext string) (string, error)
}

// RSAEncryptor PKCS#1 v1.5 加密，输出 base64
type RSAEncryptor struct{}

// Encrypt 加密明文；公钥可以是裸 base64 也可以是完整 PEM
func (RSAEncryptor) Encrypt(publicKey, plaintext string) (string, error) {
	pub, err := ParsePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("rsa encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// ParsePublicKey 解析公钥，缺少 PEM 头尾时自动补齐
func ParsePublicKey(key string) (*rsa.PublicKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidPublicKey
	}
	if !strings.Contains(key, pemPublicHeader) {
		key = pemPublicHeader + "\n" + key + "\n" + pemPublicFooter
	}

	block, _ := pem.Decode([]byte(key))
	if block == nil {
		return nil, ErrInvalidPublicKey
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, ErrInvalidPublicKey
	}
	if rsaPub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return rsaPub, nil
	}
	return nil, ErrInvalidPublicKey
}

// KeyPair 服务端持有的密钥对
type KeyPair struct {
	private *rsa.PrivateKey
}

// GenerateKeyPair 生成密钥对
func GenerateKeyPair(bits int) (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &KeyPair{private: key}, nil
}

// PublicKey 返回不带 PEM 头尾的 base64 公钥
func (k *KeyPair) PublicKey() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.private.PublicKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Decrypt 解密 base64 密文
func (k *KeyPair) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	out, err := rsa.DecryptPKCS1v15(rand.Reader, k.private, raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
