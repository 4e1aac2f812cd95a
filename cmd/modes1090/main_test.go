package main

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modes1090/internal/app"
)

func TestRootCommand_Defaults(t *testing.T) {
	config := app.DefaultConfig()
	cmd := newRootCommand(&config)
	require.NoError(t, cmd.ParseFlags(nil))

	assert.Equal(t, app.DefaultConfig(), config)
}

func TestRootCommand_Flags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, c app.Config)
	}{
		{
			name: "device and gain",
			args: []string{"-d", "1", "-g", "-100", "--enable-agc", "-f", "1090100000"},
			check: func(t *testing.T, c app.Config) {
				assert.Equal(t, 1, c.DeviceIndex)
				assert.Equal(t, -100.0, c.Gain)
				assert.True(t, c.EnableAGC)
				assert.Equal(t, uint32(1090100000), c.Frequency)
			},
		},
		{
			name: "file input",
			args: []string{"--ifile", "samples.bin", "--loop", "--raw", "--aggressive", "--no-fix"},
			check: func(t *testing.T, c app.Config) {
				assert.Equal(t, "samples.bin", c.InputFile)
				assert.True(t, c.Loop)
				assert.True(t, c.Raw)
				assert.True(t, c.Aggressive)
				assert.True(t, c.NoFix)
			},
		},
		{
			name: "network",
			args: []string{"--net", "--net-ro-port", "40002", "--net-http-port", "9090", "--nats-url", "nats://n:4222", "--redis-addr", "r:6379"},
			check: func(t *testing.T, c app.Config) {
				assert.True(t, c.Net)
				assert.Equal(t, 40002, c.NetROPort)
				assert.Equal(t, 9090, c.NetHTTPPort)
				assert.Equal(t, app.DefaultNetSBSPort, c.NetSBSPort)
				assert.Equal(t, "nats://n:4222", c.NATSURL)
				assert.Equal(t, "r:6379", c.RedisAddr)
			},
		},
		{
			name: "view and logs",
			args: []string{"--interactive", "--interactive-ttl", "120", "--metric", "--stats", "--stats-interval", "1m", "-l", "/tmp/sbs", "-u=false", "--lat", "52.1", "--lon", "4.2"},
			check: func(t *testing.T, c app.Config) {
				assert.True(t, c.Interactive)
				assert.Equal(t, 120, c.InteractiveTTL)
				assert.True(t, c.Metric)
				assert.True(t, c.Stats)
				assert.Equal(t, time.Minute, c.StatsInterval)
				assert.Equal(t, "/tmp/sbs", c.LogDir)
				assert.False(t, c.LogRotateUTC)
				assert.Equal(t, 52.1, c.Latitude)
				assert.Equal(t, 4.2, c.Longitude)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := app.DefaultConfig()
			cmd := newRootCommand(&config)
			require.NoError(t, cmd.ParseFlags(tt.args))
			tt.check(t, config)
		})
	}
}

func TestRootCommand_EnvDefaultsBelowFlags(t *testing.T) {
	t.Setenv("MODES1090_NET_HTTP_PORT", "9191")
	t.Setenv("MODES1090_GAIN", "30")

	config := app.DefaultConfig()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	require.NoError(t, config.LoadEnv(logger))

	cmd := newRootCommand(&config)
	require.NoError(t, cmd.ParseFlags([]string{"--gain", "20"}))

	assert.Equal(t, 9191, config.NetHTTPPort)
	assert.Equal(t, 20.0, config.Gain)
}

func TestRootCommand_Version(t *testing.T) {
	config := app.DefaultConfig()
	cmd := newRootCommand(&config)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version: "+app.Version)
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	config := app.DefaultConfig()
	cmd := newRootCommand(&config)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--loop"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, app.ErrInvalidConfig)
}
