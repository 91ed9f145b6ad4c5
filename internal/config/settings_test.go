package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kakei/kakeibot/internal/common"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	s := FromViper(v)

	assert.Equal(t, ":8080", s.ListenAddr)
	assert.Equal(t, "JPY", s.Currency)
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, 64, s.QueueSize)
	assert.InDelta(t, 0.6, s.MinConfidence, 0.0001)
	assert.Equal(t, 3*time.Second, s.ClassifyTimeout)
	assert.Equal(t, time.Minute, s.RateWindow)
	assert.Equal(t, 4, s.RatePerUser)
	assert.Equal(t, 30, s.RateGlobal)
	assert.NotEmpty(t, s.DBPath)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("pipeline.workers", 8)
	v.Set("ratelimit.window", "30s")
	v.Set("identity.secret", "s3cret")

	s := FromViper(v)

	assert.Equal(t, 8, s.Workers)
	assert.Equal(t, 30*time.Second, s.RateWindow)
	assert.Equal(t, "s3cret", s.IdentitySecret)
}

func TestSettingsValidate(t *testing.T) {
	valid := Settings{
		DBPath:         "/tmp/kakeibot.db",
		IdentitySecret: "s3cret",
		MinConfidence:  0.6,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   error
	}{
		{
			name:   "missing secret",
			mutate: func(s *Settings) { s.IdentitySecret = "" },
			want:   common.ErrMissingConfig,
		},
		{
			name:   "missing db path",
			mutate: func(s *Settings) { s.DBPath = "" },
			want:   common.ErrMissingConfig,
		},
		{
			name:   "confidence out of range",
			mutate: func(s *Settings) { s.MinConfidence = 1.5 },
			want:   common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), tt.want)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("KAKEIBOT_TEST_DIR", "/var/data")

	assert.Equal(t, "/var/data/kakeibot.db", ExpandPath("$KAKEIBOT_TEST_DIR/kakeibot.db"))
	assert.Equal(t, "", ExpandPath(""))
	assert.NotContains(t, ExpandPath("~/kakeibot.db"), "~")
}
