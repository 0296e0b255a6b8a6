package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

type Config struct {
	DatabaseDSN     string
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	RetentionWindow time.Duration
	SweepInterval   time.Duration
}

func DecodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("empty signing key")
	}

	return key, nil
}

// NewConfig validates the server settings. An empty databaseDSN disables the
// transcript archive.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, retention, sweepInterval time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention window must be positive, got %v", retention)
	}
	if sweepInterval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %v", sweepInterval)
	}

	// Decode the base64 encoded signing secret
	signingKey, err := DecodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:     databaseDSN,
		ServerAddr:      serverAddr,
		SigningKey:      signingKey,
		AllowedOrigins:  allowedOrigins,
		RetentionWindow: retention,
		SweepInterval:   sweepInterval,
	}, nil
}
