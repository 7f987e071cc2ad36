package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config 通知服务配置
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// 任务队列配置（Redis Streams）
	Queue struct {
		Stream       string // 任务流名称
		Group        string // 消费者组
		ConsumerName string // 消费者名称（每个实例唯一）
		BatchSize    int64  // 单次读取消息数量
	}

	// 策略网关配置
	Policy struct {
		BaseURL string // 策略决策服务地址
	}

	// SMTP 配置（email 通道和紧急按钮邮件共用）
	SMTP struct {
		Host      string
		Port      int
		Username  string
		Password  string
		FromName  string
		FromEmail string
	}

	MQTT struct {
		Broker   string
		ClientID string
		Username string
		Password string
	}

	// 清理任务配置
	Cleanup struct {
		ErasureBatchSize int // 用户事件删除的单批数量
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Queue.Stream = getEnv("QUEUE_STREAM", "notify:tasks")
	cfg.Queue.Group = getEnv("QUEUE_GROUP", "wisefido-notify")
	cfg.Queue.ConsumerName = getEnv("QUEUE_CONSUMER", defaultConsumerName())
	cfg.Queue.BatchSize = int64(getEnvInt("QUEUE_BATCH_SIZE", 10))

	cfg.Policy.BaseURL = getEnv("POLICY_BASE_URL", "http://localhost:8081")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.Port = getEnvInt("SMTP_PORT", 587)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.FromName = getEnv("SMTP_FROM_NAME", "Wisefido Notify")
	cfg.SMTP.FromEmail = getEnv("SMTP_FROM_EMAIL", "")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-notify")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	cfg.Cleanup.ErasureBatchSize = getEnvInt("CLEANUP_ERASURE_BATCH_SIZE", 500)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Queue.BatchSize <= 0 {
		return nil, fmt.Errorf("QUEUE_BATCH_SIZE must be positive")
	}
	if cfg.Cleanup.ErasureBatchSize <= 0 {
		return nil, fmt.Errorf("CLEANUP_ERASURE_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// GetDSN 构建数据库连接字符串
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

func defaultConsumerName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "wisefido-notify-1"
	}
	return "wisefido-notify-" + hostname
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
