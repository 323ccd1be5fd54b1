package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	DatabaseURL string `env:"DATABASE_URL"`

	Gateway   Gateway   `envPrefix:"GATEWAY_"`
	Auth      Auth      `envPrefix:"AUTH_"`
	Inventory Inventory `envPrefix:"INVENTORY_"`
	Checkout  Checkout  `envPrefix:"CHECKOUT_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Gateway struct {
	BaseApiURL       string        `env:"BASE_API_URL"`
	APIKey           string        `env:"API_KEY"`
	WebhookSecret    string        `env:"WEBHOOK_SECRET"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	TransientRetries int           `env:"TRANSIENT_RETRIES" envDefault:"2"`
}

type Auth struct {
	// Empty secret falls back to a fixed development identity.
	JWTSecret string `env:"JWT_SECRET"`
}

type Inventory struct {
	LockRetries int           `env:"LOCK_RETRIES" envDefault:"3"`
	LockBackoff time.Duration `env:"LOCK_BACKOFF" envDefault:"50ms"`
}

type Checkout struct {
	ReservationTTL time.Duration `env:"RESERVATION_TTL" envDefault:"30m"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`
	ReaperBatch    int           `env:"REAPER_BATCH" envDefault:"100"`
}
