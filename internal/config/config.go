// Пакет config — загрузка и валидация конфигурации Media Module
// из переменных окружения (префикс MM_).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// envPrefix — префикс переменных окружения модуля.
const envPrefix = "MM"

// bytesPerMB — множитель лимитов, заданных в мегабайтах.
const bytesPerMB = 1024 * 1024

// Config содержит все параметры конфигурации Media Module.
type Config struct {
	// Порт HTTP-сервера (диапазон 8030-8039)
	Port int `envconfig:"PORT" default:"8030"`
	// Корневая директория хранения блобов (<root>/content/<Category>/...)
	DataDir string `envconfig:"DATA_DIR" required:"true"`
	// Путь к файлу встроенного хранилища метаданных (по умолчанию <DataDir>/metadata.db)
	DBPath string `envconfig:"DB_PATH"`
	// Путь к директории журнала намерений (WAL)
	WALDir string `envconfig:"WAL_DIR" required:"true"`
	// Начальный режим работы (rw, ro)
	Mode string `envconfig:"MODE" default:"rw"`

	// --- Медиа ---

	// Разрешено ли редактирование записей (media_allow_editing)
	AllowEditing bool `envconfig:"MEDIA_ALLOW_EDITING" default:"true"`
	// Максимальная длина отображаемого имени
	MaxNameLength int `envconfig:"MEDIA_MAX_NAME_LENGTH" default:"32"`
	// Длина генерируемого идентификатора записи
	IDLength int `envconfig:"MEDIA_ID_LENGTH" default:"4"`
	// Пытаться ли хранить блобы сжатыми (DEFLATE)
	StoreCompressed bool `envconfig:"STORE_COMPRESSED" default:"true"`

	// --- Теги ---

	// Словарь тегов по умолчанию
	DefaultTags []string `envconfig:"TAGS_DEFAULT" default:"funny,meme,nsfw,clip"`
	// Разрешены ли пользовательские теги вне словаря
	AllowCustomTags bool `envconfig:"TAGS_ALLOW_CUSTOM" default:"false"`
	// Максимальная длина пользовательского тега
	MaxTagLength int `envconfig:"TAGS_MAX_LENGTH" default:"16"`
	// Время жизни кэша списка тегов
	TagsCacheTTL time.Duration `envconfig:"TAGS_CACHE_TTL" default:"30s"`

	// --- Квоты (0 — без ограничения) ---

	// Максимальное количество загрузок на аккаунт
	UploadLimit int `envconfig:"USER_UPLOAD_LIMIT" default:"60"`
	// Максимальный размер одной загрузки в МБ
	UploadSizeLimitMB int64 `envconfig:"USER_UPLOAD_SIZE_LIMIT_MB" default:"12"`
	// Максимальный суммарный объём загрузок в МБ
	TotalUploadSizeLimitMB int64 `envconfig:"USER_TOTAL_UPLOAD_SIZE_LIMIT_MB" default:"120"`

	// --- Фоновые процессы ---

	// Интервал автоматической сверки метаданных
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"6h"`

	// --- Аутентификация ---

	// URL JWKS endpoint (пусто — только анонимный доступ)
	JWKSUrl string `envconfig:"JWKS_URL"`
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string `envconfig:"JWKS_CA_CERT"`
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration `envconfig:"JWKS_CLIENT_TIMEOUT" default:"5s"`
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration `envconfig:"JWKS_REFRESH_INTERVAL" default:"15m"`
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration `envconfig:"JWT_LEEWAY" default:"5s"`
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration `envconfig:"DEPHEALTH_CHECK_INTERVAL" default:"15s"`
	// Имя вершины графа в метриках topologymetrics (пусто — имя владельца пода из hostname)
	DephealthName string `envconfig:"DEPHEALTH_NAME"`

	// --- HTTP ---

	// Путь к TLS сертификату (опционально)
	TLSCert string `envconfig:"TLS_CERT"`
	// Путь к TLS приватному ключу (опционально)
	TLSKey string `envconfig:"TLS_KEY"`
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// --- Логирование ---

	// Уровень логирования (debug, info, warn, error)
	LogLevelRaw string `envconfig:"LOG_LEVEL" default:"info"`
	// Формат логов (json, text)
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// LogLevel — разобранный уровень логирования
	LogLevel slog.Level `ignored:"true"`
}

// Load загружает конфигурацию из переменных окружения (и .env, если файл есть),
// валидирует значения и возвращает Config или ошибку.
func Load() (*Config, error) {
	// .env — только для локальной разработки
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("ошибка загрузки .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет диапазоны и допустимые значения параметров.
func (c *Config) validate() error {
	if c.Port < 8030 || c.Port > 8039 {
		return fmt.Errorf("MM_PORT: значение %d вне допустимого диапазона 8030-8039", c.Port)
	}

	// required в envconfig проверяет лишь наличие переменной
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("MM_DATA_DIR: значение не может быть пустым")
	}
	if strings.TrimSpace(c.WALDir) == "" {
		return fmt.Errorf("MM_WAL_DIR: значение не может быть пустым")
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "metadata.db")
	}

	if c.Mode != "rw" && c.Mode != "ro" {
		return fmt.Errorf("MM_MODE: недопустимое значение %q, допустимые: rw, ro", c.Mode)
	}

	if c.MaxNameLength <= 0 {
		return fmt.Errorf("MM_MEDIA_MAX_NAME_LENGTH: значение должно быть положительным")
	}
	if c.IDLength < 4 || c.IDLength > 64 {
		return fmt.Errorf("MM_MEDIA_ID_LENGTH: значение %d вне допустимого диапазона 4-64", c.IDLength)
	}
	if c.MaxTagLength <= 0 {
		return fmt.Errorf("MM_TAGS_MAX_LENGTH: значение должно быть положительным")
	}

	// Отрицательные квоты не имеют смысла, 0 — отключение
	if c.UploadLimit < 0 || c.UploadSizeLimitMB < 0 || c.TotalUploadSizeLimitMB < 0 {
		return fmt.Errorf("MM_USER_*_LIMIT: значения не могут быть отрицательными")
	}

	// Словарь тегов хранится в нижнем регистре
	normalized := make([]string, 0, len(c.DefaultTags))
	for _, tag := range c.DefaultTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}
	c.DefaultTags = normalized

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("MM_TLS_CERT и MM_TLS_KEY должны задаваться вместе")
	}

	level, err := parseLogLevel(c.LogLevelRaw)
	if err != nil {
		return fmt.Errorf("MM_LOG_LEVEL: %w", err)
	}
	c.LogLevel = level

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("MM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", c.LogFormat)
	}

	return nil
}

// UploadSizeLimit возвращает лимит одной загрузки в байтах (0 — без ограничения).
func (c *Config) UploadSizeLimit() int64 {
	return c.UploadSizeLimitMB * bytesPerMB
}

// TotalUploadSizeLimit возвращает лимит суммарного объёма в байтах (0 — без ограничения).
func (c *Config) TotalUploadSizeLimit() int64 {
	return c.TotalUploadSizeLimitMB * bytesPerMB
}

// PublicConfig — проекция конфигурации, видимая клиентам.
type PublicConfig struct {
	AllowEditing           bool     `json:"media_allow_editing"`
	MaxNameLength          int      `json:"media_max_name_length"`
	DefaultTags            []string `json:"tags_default"`
	AllowCustomTags        bool     `json:"tags_allow_custom"`
	MaxTagLength           int      `json:"tags_max_name_length"`
	UploadLimit            int      `json:"user_upload_limit"`
	UploadSizeLimitMB      int64    `json:"user_upload_size_limit"`
	TotalUploadSizeLimitMB int64    `json:"user_total_upload_size_limit"`
}

// PublicView возвращает параметры, безопасные для отдачи клиенту.
func (c *Config) PublicView() PublicConfig {
	return PublicConfig{
		AllowEditing:           c.AllowEditing,
		MaxNameLength:          c.MaxNameLength,
		DefaultTags:            append([]string(nil), c.DefaultTags...),
		AllowCustomTags:        c.AllowCustomTags,
		MaxTagLength:           c.MaxTagLength,
		UploadLimit:            c.UploadLimit,
		UploadSizeLimitMB:      c.UploadSizeLimitMB,
		TotalUploadSizeLimitMB: c.TotalUploadSizeLimitMB,
	}
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
