package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once   sync.Once
	config *Config
)

// Config 全局配置结构
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	API        APIConfig        `mapstructure:"api"`
	Session    SessionConfig    `mapstructure:"session"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Log        LogConfig        `mapstructure:"log"`
	DevAPI     DevAPIConfig     `mapstructure:"devapi"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// APIConfig 后端接口配置
type APIConfig struct {
	BaseURL      string          `mapstructure:"baseURL"`
	Timeout      int             `mapstructure:"timeout"` // 秒
	ClientID     string          `mapstructure:"clientId"`
	ClientSecret string          `mapstructure:"clientSecret"`
	Discovery    DiscoveryConfig `mapstructure:"discovery"`
}

// TimeoutDuration 请求超时时间，未配置时为30秒
func (c *APIConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// DiscoveryConfig 服务发现配置
type DiscoveryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Registry string `mapstructure:"registry"` // mdns | memory
	Service  string `mapstructure:"service"`
	BasePath string `mapstructure:"basePath"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	RefreshLead  int  `mapstructure:"refreshLead"`  // 过期前多少秒刷新
	RefreshFloor int  `mapstructure:"refreshFloor"` // 最早多少秒后刷新
	ExpiryGuard  int  `mapstructure:"expiryGuard"`  // 距离过期至少保留多少秒
	AutoRefresh  bool `mapstructure:"autoRefresh"`
}

// StorageConfig 本地持久化配置
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // memory | redis | sqlite | mysql | postgres
	Prefix   string         `mapstructure:"prefix"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

// NavigationConfig 路由守卫配置
type NavigationConfig struct {
	RouteRetryDelay int `mapstructure:"routeRetryDelay"` // 毫秒
}

// RetryDelay 路由未命中时的重试等待时间
func (c *NavigationConfig) RetryDelay() time.Duration {
	if c.RouteRetryDelay <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.RouteRetryDelay) * time.Millisecond
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	LogLevel     string `mapstructure:"logLevel"`
}

// DSN 生成数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	case "sqlite":
		// 为空时使用内存数据库
		if c.Database == "" {
			return ":memory:"
		}
		return c.Database
	default:
		return ""
	}
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"`
	Mode     string `mapstructure:"mode"` // "standalone" 外部 Redis, "memory" 内存模式
}

// Addr 获取Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
	Expire int64  `mapstructure:"expire"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// DevAPIConfig 开发用后端桩服务配置
type DevAPIConfig struct {
	Host         string         `mapstructure:"host"`
	Port         int            `mapstructure:"port"`
	Database     DatabaseConfig `mapstructure:"database"`
	JWT          JWTConfig      `mapstructure:"jwt"`
	SmsCode      string         `mapstructure:"smsCode"`
	ClientID     string         `mapstructure:"clientId"`
	ClientSecret string         `mapstructure:"clientSecret"`
	Register     bool           `mapstructure:"register"` // 是否注册到服务发现
	ServiceName  string         `mapstructure:"serviceName"`
}

// Addr 监听地址
func (c *DevAPIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		config, err = Load(configPath)
	})
	return err
}

// Load 加载配置文件，返回独立的配置实例
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	// 读取环境变量
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = v.GetString("app.env")
	}

	if env != "" && env != "default" && configPath == "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			// 环境配置文件不存在不报错
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to merge env config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveEnvVars(cfg)
	return cfg, nil
}

// setDefaults 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "admin-console")
	v.SetDefault("app.env", "dev")
	v.SetDefault("api.baseURL", "http://127.0.0.1:8090/api")
	v.SetDefault("api.timeout", 30)
	v.SetDefault("api.discovery.registry", "mdns")
	v.SetDefault("api.discovery.service", "devapi")
	v.SetDefault("api.discovery.basePath", "/api")
	v.SetDefault("session.refreshLead", 300)
	v.SetDefault("session.refreshFloor", 60)
	v.SetDefault("session.expiryGuard", 60)
	v.SetDefault("session.autoRefresh", true)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.prefix", "admin_")
	v.SetDefault("storage.database.driver", "sqlite")
	v.SetDefault("storage.database.database", "./data/console.db")
	v.SetDefault("storage.redis.mode", "standalone")
	v.SetDefault("navigation.routeRetryDelay", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "console")
	v.SetDefault("devapi.host", "127.0.0.1")
	v.SetDefault("devapi.port", 8090)
	v.SetDefault("devapi.database.driver", "sqlite")
	v.SetDefault("devapi.jwt.issuer", "devapi")
	v.SetDefault("devapi.jwt.expire", 7200)
	v.SetDefault("devapi.smsCode", "123456")
	v.SetDefault("devapi.serviceName", "devapi")
}

// resolveEnvVars 解析环境变量占位符
func resolveEnvVars(cfg *Config) {
	cfg.API.ClientSecret = resolveEnvVar(cfg.API.ClientSecret)
	cfg.Storage.Redis.Host = resolveEnvVar(cfg.Storage.Redis.Host)
	cfg.Storage.Redis.Password = resolveEnvVar(cfg.Storage.Redis.Password)
	cfg.Storage.Database.Host = resolveEnvVar(cfg.Storage.Database.Host)
	cfg.Storage.Database.Username = resolveEnvVar(cfg.Storage.Database.Username)
	cfg.Storage.Database.Password = resolveEnvVar(cfg.Storage.Database.Password)
	cfg.DevAPI.Database.Password = resolveEnvVar(cfg.DevAPI.Database.Password)
	cfg.DevAPI.JWT.Secret = resolveEnvVar(cfg.DevAPI.JWT.Secret)
	cfg.DevAPI.ClientSecret = resolveEnvVar(cfg.DevAPI.ClientSecret)
}

// resolveEnvVar 解析单个环境变量
func resolveEnvVar(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envKey := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if envValue := os.Getenv(envKey); envValue != "" {
			return envValue
		}
	}
	return value
}

// Get 获取配置实例
func Get() *Config {
	if config == nil {
		panic("config not initialized, call Init first")
	}
	return config
}

// GetAPI 获取接口配置
func GetAPI() *APIConfig {
	return &Get().API
}

// GetStorage 获取存储配置
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// GetLog 获取日志配置
func GetLog() *LogConfig {
	return &Get().Log
}

// IsDev 是否为开发环境
func IsDev() bool {
	return Get().App.Env == "dev" || Get().App.Env == "development"
}
