package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/kakei/kakeibot/internal/common"
)

// Settings is the resolved process configuration, assembled from the
// config file, KAKEIBOT_* environment variables, and flags.
type Settings struct {
	DBPath          string
	ListenAddr      string
	IdentitySecret  string
	ClassifierURL   string
	Currency        string
	Workers         int
	QueueSize       int
	MinConfidence   float64
	ClassifyTimeout time.Duration
	RateWindow      time.Duration
	RatePerUser     int
	RateGlobal      int
}

// SetDefaults registers default values on the given viper instance.
// Call before reading the config file so file and env values win.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("ledger.currency", "JPY")
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.min_confidence", 0.6)
	v.SetDefault("classifier.timeout", "3s")
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.per_user", 4)
	v.SetDefault("ratelimit.global", 30)
}

// FromViper assembles settings from the given viper instance.
func FromViper(v *viper.Viper) Settings {
	return Settings{
		DBPath:          ExpandPath(v.GetString("database.path")),
		ListenAddr:      v.GetString("server.addr"),
		IdentitySecret:  v.GetString("identity.secret"),
		ClassifierURL:   v.GetString("classifier.url"),
		Currency:        v.GetString("ledger.currency"),
		Workers:         v.GetInt("pipeline.workers"),
		QueueSize:       v.GetInt("pipeline.queue_size"),
		MinConfidence:   v.GetFloat64("pipeline.min_confidence"),
		ClassifyTimeout: v.GetDuration("classifier.timeout"),
		RateWindow:      v.GetDuration("ratelimit.window"),
		RatePerUser:     v.GetInt("ratelimit.per_user"),
		RateGlobal:      v.GetInt("ratelimit.global"),
	}
}

// Validate checks the settings a running server cannot do without.
func (s Settings) Validate() error {
	if s.IdentitySecret == "" {
		return fmt.Errorf("%w: identity.secret (set KAKEIBOT_IDENTITY_SECRET)", common.ErrMissingConfig)
	}
	if s.DBPath == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("%w: pipeline.min_confidence must be within [0, 1]", common.ErrInvalidConfig)
	}
	return nil
}
