package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Relay       RelayConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RelayConfig struct {
	URL            string        // Адрес релея, который клиенты используют для подключения
	SettleDelay    time.Duration // Сколько идентичность должна быть стабильной перед переподключением
	CloseTimeout   time.Duration // Сколько ждать отправки leave при закрытии
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxFrameBytes  int64
	SendBuffer     int
	MaxTextLength  int
	AllowedOrigins []string // Пусто - разрешены все
}

type DatabaseConfig struct {
	DSN            string // Пусто - журнал аудита отключен
	MaxConnections int
}

type RedisConfig struct {
	Addr        string // Пусто - зеркало присутствия отключено
	Password    string
	DB          int
	PresenceTTL time.Duration
}

type LogConfig struct {
	Level string
}

// DefaultRelayURL - адрес релея для локальной разработки
const DefaultRelayURL = "ws://localhost:3001/ws/chat"

func Load() (*Config, error) {
	// Загрузка .env файла (если существует)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 3001),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Relay: RelayConfig{
			URL:            getEnv("RELAY_URL", DefaultRelayURL),
			SettleDelay:    getEnvAsDuration("RELAY_SETTLE_DELAY", 50*time.Millisecond),
			CloseTimeout:   getEnvAsDuration("RELAY_CLOSE_TIMEOUT", 2*time.Second),
			WriteWait:      getEnvAsDuration("RELAY_WRITE_WAIT", 10*time.Second),
			PongWait:       getEnvAsDuration("RELAY_PONG_WAIT", 60*time.Second),
			MaxFrameBytes:  int64(getEnvAsInt("RELAY_MAX_FRAME_BYTES", 64*1024)),
			SendBuffer:     getEnvAsInt("RELAY_SEND_BUFFER", 256),
			MaxTextLength:  getEnvAsInt("RELAY_MAX_TEXT_LENGTH", 4000),
			AllowedOrigins: getEnvAsList("RELAY_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			DSN:            getEnv("DATABASE_DSN", ""),
			MaxConnections: getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			PresenceTTL: getEnvAsDuration("REDIS_PRESENCE_TTL", 6*time.Hour),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Relay.URL, "ws://") && !strings.HasPrefix(c.Relay.URL, "wss://") {
		return fmt.Errorf("relay URL must use ws:// or wss://, got %q", c.Relay.URL)
	}
	if c.Relay.PongWait <= 0 || c.Relay.WriteWait <= 0 {
		return fmt.Errorf("relay write and pong waits must be positive")
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay send buffer must be positive")
	}
	if c.Relay.MaxTextLength <= 0 {
		return fmt.Errorf("relay max text length must be positive")
	}
	if c.Relay.SettleDelay < 0 {
		return fmt.Errorf("relay settle delay must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PingPeriod - интервал ping, меньше PongWait
func (r RelayConfig) PingPeriod() time.Duration {
	return r.PongWait * 9 / 10
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var values []string
	for _, entry := range strings.Split(getEnv(key, ""), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			values = append(values, entry)
		}
	}
	return values
}

// GetLocalIP возвращает первый не-localhost IPv4 адрес машины
func GetLocalIP() string {
	if ip := os.Getenv("HOST_IP"); ip != "" {
		return ip
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}

	priorityPrefixes := []string{"192.168.", "10.", "172."}

	var fallbackIP string

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				ip := ipnet.IP.String()

				for _, prefix := range priorityPrefixes {
					if strings.HasPrefix(ip, prefix) {
						return ip
					}
				}

				if fallbackIP == "" {
					fallbackIP = ip
				}
			}
		}
	}

	if fallbackIP != "" {
		return fallbackIP
	}

	return "localhost"
}
