// Package config предоставляет управление конфигурацией движка слияния.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера (internal/server).
type Server struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// Merge содержит настройки движка слияния: размер пакета чтения потока
// сообщений (internal/stream) и параметры копировщика файлов
// (internal/merge). Параметры копировщика только проверяются на
// положительность: sqlitedao создаёт копировщик через merge.New() со
// значениями по умолчанию из defaults.go, а не из этих полей.
type Merge struct {
	StreamBatchSize         int `json:"stream_batch_size" yaml:"stream_batch_size"`
	CopierPoolSize          int `json:"copier_pool_size" yaml:"copier_pool_size"`
	CopierRetryPauseSeconds int `json:"copier_retry_pause_seconds" yaml:"copier_retry_pause_seconds"`
	CopyTimeoutSeconds      int `json:"copy_timeout_seconds" yaml:"copy_timeout_seconds"`
	TotalTimeoutSeconds     int `json:"total_timeout_seconds" yaml:"total_timeout_seconds"` // 0 - без ограничений
}

// Storage содержит настройки хранилища задач и каталога по умолчанию для
// файловых корней датасетов sqlite-реализации DAO (internal/dao/sqlitedao).
type Storage struct {
	SQLiteDir    string `json:"sqlite_dir" yaml:"sqlite_dir"`
	TaskTTLHours int    `json:"task_ttl_hours" yaml:"task_ttl_hours"`
}

// Logging содержит конфигурацию логирования.
type Logging struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
}

// Config содержит конфигурацию приложения целиком.
type Config struct {
	Server  Server  `json:"server" yaml:"server"`
	Merge   Merge   `json:"merge" yaml:"merge"`
	Storage Storage `json:"storage" yaml:"storage"`
	Logging Logging `json:"logging" yaml:"logging"`
}

// defaultConfig строит конфигурацию со значениями по умолчанию из
// defaults.go, которые затем может переопределить YAML-файл или переменные
// окружения.
func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Host:                   DefaultServerHost,
			Port:                   DefaultServerPort,
			ShutdownTimeoutSeconds: DefaultShutdownTimeoutSeconds,
		},
		Merge: Merge{
			StreamBatchSize:         DefaultStreamBatchSize,
			CopierPoolSize:          DefaultCopierPoolSize,
			CopierRetryPauseSeconds: DefaultCopierRetryPauseSeconds,
			CopyTimeoutSeconds:      DefaultCopyTimeoutSeconds,
			TotalTimeoutSeconds:     DefaultMergeTotalTimeoutSeconds,
		},
		Storage: Storage{
			SQLiteDir:    DefaultSQLiteDir,
			TaskTTLHours: DefaultTaskTTLHours,
		},
		Logging: Logging{
			Level: DefaultLogLevel,
		},
	}
}

// LoadConfig загружает конфигурацию приложения: значения по умолчанию,
// переопределённые config.yml (если он существует) и переменными окружения.
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла, если он существует.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := loadFromYAML("config.yml", cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить config.yml: %w", err)
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadFromYAML читает YAML-файл по filename и накладывает его поля на cfg.
// Отсутствие файла - не ошибка: в этом случае cfg остаётся без изменений.
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}
	return nil
}

// applyEnvOverrides накладывает на cfg значения из переменных окружения,
// если они заданы - для обратной совместимости с развёртываниями без
// config.yml.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SQLITE_DIR"); v != "" {
		cfg.Storage.SQLiteDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Address возвращает адрес сервера в формате "host:port".
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate проверяет, являются ли значения конфигурации допустимыми.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds должно быть положительным")
	}

	if c.Merge.StreamBatchSize <= 0 {
		return fmt.Errorf("merge.stream_batch_size должно быть положительным")
	}
	if c.Merge.CopierPoolSize <= 0 {
		return fmt.Errorf("merge.copier_pool_size должно быть положительным")
	}
	if c.Merge.CopierRetryPauseSeconds <= 0 {
		return fmt.Errorf("merge.copier_retry_pause_seconds должно быть положительным")
	}
	if c.Merge.CopyTimeoutSeconds <= 0 {
		return fmt.Errorf("merge.copy_timeout_seconds должно быть положительным")
	}
	if c.Merge.TotalTimeoutSeconds < 0 {
		return fmt.Errorf("merge.total_timeout_seconds должно быть неотрицательным (0 для отсутствия ограничений)")
	}

	if c.Storage.SQLiteDir == "" {
		return fmt.Errorf("storage.sqlite_dir не может быть пустым")
	}
	if c.Storage.TaskTTLHours <= 0 {
		return fmt.Errorf("storage.task_ttl_hours должно быть положительным")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}

	return nil
}
