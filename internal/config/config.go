// Package config предоставляет структуры и функции для загрузки конфигурации сервисов.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	// EnvLocal локальный запуск, подробное логирование.
	EnvLocal = "local"
	// EnvProd боевое окружение.
	EnvProd = "prod"

	// DriverPostgres хранилище в PostgreSQL.
	DriverPostgres = "postgres"
	// DriverMemory хранилище в памяти для разработки.
	DriverMemory = "memory"

	// PolicySingle любой допустимый платёж покупает ровно один период.
	PolicySingle = "single"
	// PolicyProportional число периодов пропорционально сумме.
	PolicyProportional = "proportional"
)

// Config общая структура для хранения настроек всех сервисов.
type Config struct {
	Env                     string     `yaml:"env" env:"APP_ENV" env-default:"local"`
	StorageDriver           string     `yaml:"storage_driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	StorageConnectionString string     `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string     `yaml:"migrations_path" env-default:"./migrations"`
	HTTPServer              HTTPServer `yaml:"http_server"`
	Redis                   Redis      `yaml:"redis_connection"`
	RabbitMQ                RabbitMQ   `yaml:"rabbitmq"`
	References              References `yaml:"references"`
	Reconcile               Reconcile  `yaml:"reconcile"`
	Sweep                   Sweep      `yaml:"sweep"`
}

// HTTPServer настройки административного HTTP API.
type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimit   float64       `yaml:"rate_limit" env-default:"5"`
	RateBurst   int           `yaml:"rate_burst" env-default:"10"`
}

// Redis настройки подключения к redis. Пустой адрес отключает кеш.
type Redis struct {
	Address     string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries" env-default:"3"`
	DialTimeout time.Duration `yaml:"dial_timeout" env-default:"5s"`
	Timeout     time.Duration `yaml:"timeout" env-default:"3s"`
	TTL         time.Duration `yaml:"ttl" env-default:"1h"`
}

// RabbitMQ настройки брокера сообщений.
type RabbitMQ struct {
	URL               string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries        int           `yaml:"max_retries" env-default:"5"`
	RetryDelay        time.Duration `yaml:"retry_delay" env-default:"2s"`
	TransactionsQueue string        `yaml:"transactions_queue" env-default:"bank.transactions"`
}

// References смещения и политика повторов при назначении ссылочных номеров.
type References struct {
	MemberBase  int64 `yaml:"member_base" env-default:"1000"`
	InvoiceBase int64 `yaml:"invoice_base" env-default:"500000"`
	MaxRetries  int   `yaml:"max_retries" env-default:"5"`
	RetryStride int64 `yaml:"retry_stride" env-default:"100000"`
}

// Reconcile настройки сверки платежей.
type Reconcile struct {
	DefaultServiceID      int64  `yaml:"default_service_id" env-default:"1"`
	AccessRightsServiceID int64  `yaml:"access_rights_service_id"`
	PeriodPolicy          string `yaml:"period_policy" env-default:"single"`
}

// Sweep настройки периодического обхода подписок.
type Sweep struct {
	Interval      time.Duration `yaml:"interval" env-default:"12h"`
	DeletionGrace time.Duration `yaml:"deletion_grace" env-default:"720h"`
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.StorageConnectionString == "" {
			return fmt.Errorf("storage_connection_string is required for %s driver", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage_driver %q", c.StorageDriver)
	}
	switch c.Reconcile.PeriodPolicy {
	case PolicySingle, PolicyProportional:
	default:
		return fmt.Errorf("unknown reconcile.period_policy %q", c.Reconcile.PeriodPolicy)
	}
	if c.References.MaxRetries < 1 {
		return fmt.Errorf("references.max_retries must be positive")
	}
	if c.References.RetryStride < 1 {
		return fmt.Errorf("references.retry_stride must be positive")
	}
	// Первые номера участников и счетов не должны совпадать, дальше
	// пересечения разрешает проверка при назначении.
	if c.References.MemberBase < 0 || c.References.MemberBase >= c.References.InvoiceBase {
		return fmt.Errorf("references.member_base %d must be below references.invoice_base %d",
			c.References.MemberBase, c.References.InvoiceBase)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageDriver: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"Redis:\n"+
			"  Address: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ:\n"+
			"  TransactionsQueue: %s\n"+
			"References:\n"+
			"  MemberBase: %d\n"+
			"  InvoiceBase: %d\n"+
			"Reconcile:\n"+
			"  DefaultServiceID: %d\n"+
			"  PeriodPolicy: %s\n"+
			"Sweep:\n"+
			"  Interval: %s\n",
		c.Env,
		c.StorageDriver,
		c.HTTPServer.Address,
		c.HTTPServer.Timeout,
		c.Redis.Address,
		c.Redis.DB,
		c.RabbitMQ.TransactionsQueue,
		c.References.MemberBase,
		c.References.InvoiceBase,
		c.Reconcile.DefaultServiceID,
		c.Reconcile.PeriodPolicy,
		c.Sweep.Interval,
	)
}
