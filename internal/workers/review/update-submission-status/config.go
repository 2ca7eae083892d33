package updatesubmissionstatus

import (
	"time"

	"admissions-forms/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig reads the worker entry; a zero timeout falls back to 30s.
func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
