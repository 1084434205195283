package config

import "os"

type Config struct {
	// DBSource is the Postgres connection string. When empty the server
	// runs against the in-memory store (no durability).
	DBSource string
	Port     string
	Env      string
}

func Load() *Config {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &Config{
		DBSource: os.Getenv("DB_SOURCE"),
		Port:     port,
		Env:      env,
	}
}
