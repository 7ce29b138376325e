// Package config loads runtime settings from environment variables, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds every credential and knob the binaries need.
type Config struct {
	DatabaseURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRefreshToken string

	ListenAddr string
	DataDir    string
	LogLevel   string
}

// Load reads .env when present, then the environment. Missing credentials are
// not an error here; each command validates what it actually needs.
func Load() *Config {
	// .env is a local convenience only. A missing file is the normal case
	// in production.
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:         os.Getenv("OPENAI_MODEL"),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRefreshToken: os.Getenv("SPOTIFY_REFRESH_TOKEN"),
		ListenAddr:          getenvDefault("LISTEN_ADDR", ":8080"),
		DataDir:             getenvDefault("DATA_DIR", "~/.venuescout/candidates"),
		LogLevel:            getenvDefault("LOG_LEVEL", "info"),
	}
}

// RequireDatabase returns an error unless DATABASE_URL is set.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireOpenAI returns an error unless the OpenAI key is set.
func (c *Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// RequireSpotify returns an error unless all three Spotify credentials are set.
func (c *Config) RequireSpotify() error {
	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" || c.SpotifyRefreshToken == "" {
		return fmt.Errorf("SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET and SPOTIFY_REFRESH_TOKEN are required")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
