package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Host string `env:"RAMIS_HOST,default=127.0.0.1"`
	Port int    `env:"RAMIS_PORT,default=6379"`

	// Timeout bounds each wait for reply data
	Timeout time.Duration `env:"RAMIS_TIMEOUT,default=3s"`

	BufferSize    int `env:"RAMIS_BUFFER_SIZE,default=8192"`
	MaxBufferSize int `env:"RAMIS_MAX_BUFFER_SIZE,default=536870912"`

	LogLevel  string `env:"RAMIS_LOG_LEVEL,default=info"`
	DebugHTTP bool   `env:"RAMIS_DEBUG_HTTP"`
}

// LoadConfig reads the environment, plus .env.local when there is one.
func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
