package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"modes1090/internal/rtlsdr"
)

// Default configuration constants
const (
	DefaultFrequency      = rtlsdr.DefaultFrequency // 1090 MHz
	DefaultGain           = rtlsdr.DefaultGain      // dB, max for R820T
	DefaultInteractiveTTL = 60                      // seconds
	DefaultStatsInterval  = 30 * time.Second

	DefaultNetROPort      = 30002
	DefaultNetRIPort      = 30001
	DefaultNetSBSPort     = 30003
	DefaultNetBeastInPort = 30004
	DefaultNetHTTPPort    = 8080

	// EnvPrefix prefixes every environment variable read by LoadEnv
	EnvPrefix = "MODES1090_"

	// EnvFile is read by LoadEnv before the environment when it exists
	EnvFile = ".env"
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	// Sample source
	DeviceIndex int
	Gain        float64 // dB, rtlsdr.AutoGain for automatic
	EnableAGC   bool
	Frequency   uint32
	InputFile   string // "-" reads stdin
	Loop        bool

	// Decoding
	NoFix      bool
	NoCRCCheck bool
	Aggressive bool

	// Output
	Raw            bool
	OnlyAddr       bool
	SBS            bool
	Interactive    bool
	InteractiveTTL int // seconds
	Metric         bool
	Stats          bool
	StatsInterval  time.Duration

	// Network
	Net            bool
	NetOnly        bool
	NetROPort      int
	NetRIPort      int
	NetSBSPort     int
	NetBeastInPort int
	NetHTTPPort    int

	// SBS log files
	LogDir       string
	LogRotateUTC bool
	LogMaxDays   int

	// Receiver position
	Latitude  float64
	Longitude float64

	// Live-state mirrors
	NATSURL   string
	RedisAddr string

	Verbose     bool
	ShowVersion bool
}

// DefaultConfig returns the configuration used when no flag or variable is set
func DefaultConfig() Config {
	return Config{
		Gain:           DefaultGain,
		Frequency:      DefaultFrequency,
		InteractiveTTL: DefaultInteractiveTTL,
		StatsInterval:  DefaultStatsInterval,
		NetROPort:      DefaultNetROPort,
		NetRIPort:      DefaultNetRIPort,
		NetSBSPort:     DefaultNetSBSPort,
		NetBeastInPort: DefaultNetBeastInPort,
		NetHTTPPort:    DefaultNetHTTPPort,
		LogRotateUTC:   true,
	}
}

// LoadEnv overrides c with MODES1090_* environment variables, reading a .env
// file first when one exists.
func (c *Config) LoadEnv(logger *logrus.Logger) error {
	return c.loadEnv(EnvFile, logger)
}

func (c *Config) loadEnv(envFile string, logger *logrus.Logger) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.WithError(err).WithField("file", envFile).Debug("Ignoring unreadable env file")
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	integer("DEVICE", &c.DeviceIndex)
	float("GAIN", &c.Gain)
	boolean("ENABLE_AGC", &c.EnableAGC)
	if v, ok := os.LookupEnv(EnvPrefix + "FREQ"); ok {
		f, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFREQ: %w", EnvPrefix, err))
		} else {
			c.Frequency = uint32(f)
		}
	}
	str("IFILE", &c.InputFile)
	boolean("LOOP", &c.Loop)
	boolean("AGGRESSIVE", &c.Aggressive)
	integer("INTERACTIVE_TTL", &c.InteractiveTTL)
	if v, ok := os.LookupEnv(EnvPrefix + "STATS_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSTATS_INTERVAL: %w", EnvPrefix, err))
		} else {
			c.StatsInterval = d
		}
	}
	boolean("NET", &c.Net)
	boolean("NET_ONLY", &c.NetOnly)
	integer("NET_RO_PORT", &c.NetROPort)
	integer("NET_RI_PORT", &c.NetRIPort)
	integer("NET_SBS_PORT", &c.NetSBSPort)
	integer("NET_BEAST_IN_PORT", &c.NetBeastInPort)
	integer("NET_HTTP_PORT", &c.NetHTTPPort)
	str("LOG_DIR", &c.LogDir)
	boolean("UTC", &c.LogRotateUTC)
	integer("LOG_MAX_DAYS", &c.LogMaxDays)
	float("LAT", &c.Latitude)
	float("LON", &c.Longitude)
	str("NATS_URL", &c.NATSURL)
	str("REDIS_ADDR", &c.RedisAddr)
	boolean("VERBOSE", &c.Verbose)

	return errors.Join(errs...)
}

// HasReceiver reports whether a receiver position was configured
func (c *Config) HasReceiver() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

// NetEnabled reports whether the network servers should run
func (c *Config) NetEnabled() bool {
	return c.Net || c.NetOnly
}

// Validate checks the configuration for conflicts and out-of-range values
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.NetOnly && c.InputFile != "" {
		return invalid("--net-only and --ifile are mutually exclusive")
	}
	if c.Loop && c.InputFile == "" {
		return invalid("--loop requires --ifile")
	}
	if c.Loop && c.InputFile == "-" {
		return invalid("cannot loop over stdin")
	}
	if c.Raw && c.OnlyAddr {
		return invalid("--raw and --onlyaddr are mutually exclusive")
	}
	if c.SBS && (c.Raw || c.OnlyAddr) {
		return invalid("--sbs cannot be combined with --raw or --onlyaddr")
	}

	if c.Gain != rtlsdr.AutoGain && (c.Gain < 0 || c.Gain > 60) {
		return invalid("gain %.1f dB out of range [0, 60] (use %d for auto)", c.Gain, rtlsdr.AutoGain)
	}
	if c.DeviceIndex < 0 {
		return invalid("device index %d is negative", c.DeviceIndex)
	}
	if c.InteractiveTTL <= 0 {
		return invalid("interactive TTL must be positive, got %d", c.InteractiveTTL)
	}
	if c.Stats && c.StatsInterval <= 0 {
		return invalid("stats interval must be positive, got %s", c.StatsInterval)
	}
	if c.LogMaxDays < 0 {
		return invalid("log max days must not be negative, got %d", c.LogMaxDays)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return invalid("latitude %f out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return invalid("longitude %f out of range", c.Longitude)
	}

	if c.NetEnabled() {
		ports := []struct {
			name string
			port int
		}{
			{"net-ro-port", c.NetROPort},
			{"net-ri-port", c.NetRIPort},
			{"net-sbs-port", c.NetSBSPort},
			{"net-beast-in-port", c.NetBeastInPort},
			{"net-http-port", c.NetHTTPPort},
		}
		used := make(map[int]string)
		for _, p := range ports {
			if p.port < 0 || p.port > 65535 {
				return invalid("--%s %d out of range", p.name, p.port)
			}
			// 0 picks a free port
			if p.port == 0 {
				continue
			}
			if other, ok := used[p.port]; ok {
				return invalid("--%s and --%s both use port %d", p.name, other, p.port)
			}
			used[p.port] = p.name
		}
	}

	return nil
}

func listenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
