// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/constants"

	"github.com/BurntSushi/toml"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName    string `toml:"appName"`    // 应用名称，用于日志标识等
	InstanceId string `toml:"instanceId"` // 服务实例 ID，集群内每个进程唯一；留空则使用主机名
	Host       string `toml:"host"`       // 服务器监听地址，如 "0.0.0.0"
	Port       int    `toml:"port"`       // 服务器监听端口，如 8000
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称
}

// RedisConfig Redis 连接配置
// Redis 承载连接注册表，是跨进程路由的共享目录
type RedisConfig struct {
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`       // Redis 数据库编号，默认 0
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig Kafka 消息队列配置（分发管道）
type KafkaConfig struct {
	MessageMode string        `toml:"messageMode"` // 消息模式："channel" 或 "kafka"
	HostPort    string        `toml:"hostPort"`    // Kafka 服务器地址，如 "localhost:9092"
	ChatTopic   string        `toml:"chatTopic"`   // 分发事件主题
	Partition   int           `toml:"partition"`   // 分区数
	Timeout     time.Duration `toml:"timeout"`     // 超时时间（秒）
	MaxRetries  int           `toml:"maxRetries"`  // 发布失败的有界重试次数
}

// WebsocketConfig WebSocket 连接与心跳配置
type WebsocketConfig struct {
	PingIntervalMin int      `toml:"pingIntervalMin"` // 心跳探测间隔（分钟）
	ReapIntervalMin int      `toml:"reapIntervalMin"` // 空闲会话清理间隔（分钟）
	IdleTimeoutMin  int      `toml:"idleTimeoutMin"`  // 空闲超时阈值（分钟）
	AllowedOrigins  []string `toml:"allowedOrigins"`  // 握手 Origin 白名单（内网地址始终放行）
}

// RetentionConfig 消息保留期配置
type RetentionConfig struct {
	HorizonHours     int `toml:"horizonHours"`     // 保留期（小时），到期消息可被物理删除
	PurgeIntervalMin int `toml:"purgeIntervalMin"` // 过期清理任务间隔（分钟）
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret            string `toml:"secret"`            // JWT 签名密钥，建议 32 字符以上
	AccessTokenExpiry int    `toml:"accessTokenExpiry"` // Access Token 有效期（分钟）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 雪花算法节点 ID，范围 0-1023，分布式部署时每台机器需唯一
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`      // 主配置
	MysqlConfig     `toml:"mysqlConfig"`     // MySQL 配置
	RedisConfig     `toml:"redisConfig"`     // Redis 配置
	LogConfig       `toml:"logConfig"`       // 日志配置
	KafkaConfig     `toml:"kafkaConfig"`     // Kafka 配置
	WebsocketConfig `toml:"websocketConfig"` // WebSocket 配置
	RetentionConfig `toml:"retentionConfig"` // 保留期配置
	JWTConfig       `toml:"jwtConfig"`       // JWT 配置
	SnowflakeConfig `toml:"snowflakeConfig"` // 雪花算法配置
}

// config 全局配置单例，延迟加载
var config *Config

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个可用的配置文件即停止
func LoadConfig() error {
	if config == nil {
		config = new(Config)
	}
	// 候选配置文件路径（优先加载本地配置）
	paths := []string{
		"configs/config_local.toml",       // 本地开发配置（优先）
		"configs/config.toml",             // 默认配置
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",       // 从子目录运行时的路径
	}

	// 依次尝试加载配置文件
	for _, path := range paths {
		if _, err := toml.DecodeFile(path, config); err == nil {
			applyDefaults(config)
			return nil
		}
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// applyDefaults 为未配置项填充默认值
func applyDefaults(c *Config) {
	if c.MainConfig.InstanceId == "" {
		// 以主机名作为实例 ID，容器环境中天然唯一
		if host, err := os.Hostname(); err == nil {
			c.MainConfig.InstanceId = host
		} else {
			c.MainConfig.InstanceId = "chat-1"
		}
	}
	if c.KafkaConfig.MaxRetries <= 0 {
		c.KafkaConfig.MaxRetries = constants.PUBLISH_MAX_RETRIES
	}
	if c.KafkaConfig.Timeout <= 0 {
		c.KafkaConfig.Timeout = 10 * time.Second
	}
	if c.WebsocketConfig.PingIntervalMin <= 0 {
		c.WebsocketConfig.PingIntervalMin = 2
	}
	if c.WebsocketConfig.ReapIntervalMin <= 0 {
		c.WebsocketConfig.ReapIntervalMin = 5
	}
	if c.WebsocketConfig.IdleTimeoutMin <= 0 {
		c.WebsocketConfig.IdleTimeoutMin = 30
	}
	if c.RetentionConfig.HorizonHours <= 0 {
		c.RetentionConfig.HorizonHours = 24 * 365 // 默认保留一年
	}
	if c.RetentionConfig.PurgeIntervalMin <= 0 {
		c.RetentionConfig.PurgeIntervalMin = 60
	}
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件
func GetConfig() *Config {
	if config == nil {
		config = new(Config)
		if err := LoadConfig(); err != nil {
			applyDefaults(config) // 加载失败时也保证默认值可用
		}
	}
	return config
}
