// Package config предоставляет структуры и функции для загрузки
// конфигурации сервиса лицензий.
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища лицензий.
const (
	DriverAirtable = "airtable"
	DriverPostgres = "postgres"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer      `yaml:"http_server"`
	Storage         `yaml:"storage"`
	RecordStore     `yaml:"record_store"`
	Secrets         `yaml:"secrets"`
	RateLimit       `yaml:"rate_limit"`
	RedisConnection `yaml:"redis_connection"`
	AMQP            `yaml:"amqp"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Storage выбирает драйвер хранилища лицензий.
type Storage struct {
	Driver                  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"airtable"`
	StorageConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
}

// RecordStore настройки внешнего hosted-хранилища (Airtable).
type RecordStore struct {
	APIURL string `yaml:"api_url" env:"RECORD_STORE_API_URL" env-default:"https://api.airtable.com/v0"`
	BaseID string `yaml:"base_id" env:"AIRTABLE_BASE"`
	APIKey string `yaml:"api_key" env:"AIRTABLE_KEY"`
	Table  string `yaml:"table" env:"AIRTABLE_TABLE" env-default:"licenses"`
}

// Secrets разделяемые секреты внешних контуров. Админский ключ может
// храниться bcrypt-хэшем (префикс $2).
type Secrets struct {
	AdminKey        string `yaml:"admin_key" env:"ADMIN_KEY"`
	ProviderHottok  string `yaml:"provider_hottok" env:"PROVIDER_HOTTOK"`
	OfflineTokenKey string `yaml:"offline_token_key" env:"OFFLINE_TOKEN_KEY"`
}

// RateLimit настройки ограничения частоты запросов валидации и webhook.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"5"`
	Burst int     `yaml:"burst" env-default:"10"`
}

// RedisConnection структура для настройки подключения к Redis.
// Пустой адрес отключает кэш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"2s"`
}

// AMQP настройки брокера событий. Пустой URL отключает публикацию.
type AMQP struct {
	URL        string        `yaml:"url" env:"AMQP_URL"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс
// при ошибке чтения.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

// Missing возвращает список обязательных значений, отсутствующих в
// конфигурации. Непустой список не мешает запуску: публичные эндпоинты
// отвечают явной ошибкой "configuration incomplete" вместо тихой
// работы в сломанном состоянии.
func (c *Config) Missing() []string {
	var missing []string

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.StorageConnectionString == "" {
			missing = append(missing, "storage.connection_string")
		}
	default:
		if c.RecordStore.BaseID == "" {
			missing = append(missing, "record_store.base_id")
		}
		if c.RecordStore.APIKey == "" {
			missing = append(missing, "record_store.api_key")
		}
	}
	if c.Secrets.AdminKey == "" {
		missing = append(missing, "secrets.admin_key")
	}
	if c.Secrets.ProviderHottok == "" {
		missing = append(missing, "secrets.provider_hottok")
	}
	if c.Secrets.OfflineTokenKey == "" {
		missing = append(missing, "secrets.offline_token_key")
	}
	return missing
}
