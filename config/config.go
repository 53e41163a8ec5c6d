package config

import "time"

type Config struct {
	Web     Web
	Cors    Cors
	DB      DB
	Redis   Redis
	Stripe  Stripe
	Auth    Auth
	Limiter Limiter
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origin string `conf:"default:http://localhost:3000"`
}

type DB struct {
	User       string `conf:"default:postgres"`
	Password   string `conf:"default:postgres,mask"`
	Host       string `conf:"default:localhost:5432"`
	Name       string `conf:"default:storefront"`
	DisableTLS bool   `conf:"default:true"`
}

type Redis struct {
	// Addr left empty disables the cart snapshot cache.
	Addr     string
	Password string `conf:"mask"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	SuccessURL    string `conf:"default:http://localhost:3000/thank-you"`
	CancelURL     string `conf:"default:http://localhost:3000"`
	Currency      string `conf:"default:usd"`
	// Semicolon-separated ISO country codes allowed for shipping.
	ShipTo string `conf:"default:IN;US;CA"`
}

type Auth struct {
	SessionLifetime time.Duration `conf:"default:24h"`
}

type Limiter struct {
	Burst       int     `conf:"default:20"`
	ExpiryMins  int     `conf:"default:10"`
	RequestsSec float64 `conf:"default:10"`
}
