// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Configuration is declared as struct fields with `env` tags:
//
//	type Config struct {
//		Addr     string        `env:"SERVER_ADDR" envDefault:":8080"`
//		CacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
//	}
//
// and loaded once at process start:
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// All tunables are environment-driven so deployments differ by environment,
// never by code.
package config
