package api

import (
	"fmt"
	"strings"

	"github.com/adminconsole/pkg/utils"
	"github.com/go-viper/mapstructure/v2"
)

// TokenPayload 规范化后的令牌数据，零值表示服务端未返回该字段
type TokenPayload struct {
	AccessToken  string `mapstructure:"accessToken" json:"accessToken"`
	TokenType    string `mapstructure:"tokenType" json:"tokenType"`
	ExpiresIn    int64  `mapstructure:"expiresIn" json:"expiresIn"`
	RefreshToken string `mapstructure:"refreshToken" json:"refreshToken,omitempty"`
	UserID       int64  `mapstructure:"userId" json:"userId"`
	Username     string `mapstructure:"username" json:"username"`
	NickName     string `mapstructure:"nickName" json:"nickName"`
}

// NormalizeToken 把服务端返回的令牌数据（下划线或驼峰字段）转换为统一结构。
// 两种写法同时存在时以驼峰字段为准
func NormalizeToken(raw map[string]interface{}) (*TokenPayload, error) {
	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if !strings.Contains(k, "_") {
			fields[k] = v
		}
	}
	for k, v := range raw {
		if !strings.Contains(k, "_") {
			continue
		}
		camel := utils.SnakeToLowerCamel(k)
		if _, ok := fields[camel]; !ok {
			fields[camel] = v
		}
	}
	// nick_name 与 nickname 都归到 nickName
	if _, ok := fields["nickName"]; !ok {
		if v, ok := fields["nickname"]; ok {
			fields["nickName"] = v
		}
	}

	var out TokenPayload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("normalize token payload: %w", err)
	}
	return &out, nil
}
