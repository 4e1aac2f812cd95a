package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modes1090/internal/app"
	"modes1090/internal/logging"
)

func main() {
	config := app.DefaultConfig()
	if err := config.LoadEnv(logging.NewLogger(config.Verbose, os.Stderr)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCommand(&config).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand binds every flag to config; the current config values are
// the flag defaults, so environment variables sit below the command line.
func newRootCommand(config *app.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modes1090",
		Short: "Mode S / ADS-B decoder",
		Long: `Mode S / ADS-B decoder for RTL-SDR dongles and recorded I/Q files.

Demodulates 2 MHz I/Q samples, validates and repairs frames by CRC, decodes
every supported downlink format and tracks aircraft. Frames can be printed,
served over TCP in raw and BaseStation (SBS) formats, logged to daily files,
published to NATS and mirrored to Redis.

Example usage:
  modes1090 --gain 49.6 --net --interactive
  modes1090 --ifile samples.bin --raw
  modes1090 --net-only --net-http-port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.ShowVersion {
				app.WriteVersion(cmd.OutOrStdout())
				return nil
			}

			application := app.NewApplication(*config)
			return application.Start()
		},
	}

	f := rootCmd.Flags()

	// sample source
	f.IntVarP(&config.DeviceIndex, "device", "d", config.DeviceIndex, "RTL-SDR device index")
	f.Float64VarP(&config.Gain, "gain", "g", config.Gain, "Tuner gain in dB (-100 for auto)")
	f.BoolVar(&config.EnableAGC, "enable-agc", config.EnableAGC, "Enable the RTL2832 digital AGC")
	f.Uint32VarP(&config.Frequency, "freq", "f", config.Frequency, "Frequency to tune to (Hz)")
	f.StringVar(&config.InputFile, "ifile", config.InputFile, "Read 8-bit I/Q samples from file ('-' for stdin)")
	f.BoolVar(&config.Loop, "loop", config.Loop, "Replay the input file forever")

	// decoding
	f.BoolVar(&config.NoFix, "no-fix", config.NoFix, "Disable single-bit error correction")
	f.BoolVar(&config.NoCRCCheck, "no-crc-check", config.NoCRCCheck, "Accept messages with a wrong CRC")
	f.BoolVar(&config.Aggressive, "aggressive", config.Aggressive, "More CPU for more messages (two-bit fixes, tolerant slicing)")

	// output
	f.BoolVar(&config.Raw, "raw", config.Raw, "Print *HEX; frames only")
	f.BoolVar(&config.OnlyAddr, "onlyaddr", config.OnlyAddr, "Print ICAO addresses only")
	f.BoolVar(&config.SBS, "sbs", config.SBS, "Print BaseStation (SBS) lines")
	f.BoolVar(&config.Interactive, "interactive", config.Interactive, "Interactive aircraft table")
	f.IntVar(&config.InteractiveTTL, "interactive-ttl", config.InteractiveTTL, "Seconds an aircraft stays listed without messages")
	f.BoolVar(&config.Metric, "metric", config.Metric, "Metric units in the interactive table")
	f.BoolVar(&config.Stats, "stats", config.Stats, "Log decoder statistics")
	f.DurationVar(&config.StatsInterval, "stats-interval", config.StatsInterval, "Statistics logging interval")

	// network
	f.BoolVar(&config.Net, "net", config.Net, "Enable network servers")
	f.BoolVar(&config.NetOnly, "net-only", config.NetOnly, "Network servers only, no sample source")
	f.IntVar(&config.NetROPort, "net-ro-port", config.NetROPort, "TCP port for raw output")
	f.IntVar(&config.NetRIPort, "net-ri-port", config.NetRIPort, "TCP port for raw input")
	f.IntVar(&config.NetSBSPort, "net-sbs-port", config.NetSBSPort, "TCP port for BaseStation output")
	f.IntVar(&config.NetBeastInPort, "net-beast-in-port", config.NetBeastInPort, "TCP port for Beast binary input")
	f.IntVar(&config.NetHTTPPort, "net-http-port", config.NetHTTPPort, "HTTP port for /data.json and /metrics")

	// SBS log files
	f.StringVarP(&config.LogDir, "log-dir", "l", config.LogDir, "Directory for daily SBS logs (empty disables)")
	f.BoolVarP(&config.LogRotateUTC, "utc", "u", config.LogRotateUTC, "Use UTC for log rotation")
	f.IntVar(&config.LogMaxDays, "log-max-days", config.LogMaxDays, "Remove SBS logs older than this many days (0 keeps all)")

	// receiver and mirrors
	f.Float64Var(&config.Latitude, "lat", config.Latitude, "Receiver latitude for range and bearing")
	f.Float64Var(&config.Longitude, "lon", config.Longitude, "Receiver longitude for range and bearing")
	f.StringVar(&config.NATSURL, "nats-url", config.NATSURL, "Publish messages to this NATS JetStream server")
	f.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "Mirror aircraft state to this Redis server")

	f.BoolVarP(&config.Verbose, "verbose", "v", config.Verbose, "Verbose logging")
	f.BoolVar(&config.ShowVersion, "version", config.ShowVersion, "Show version information")

	return rootCmd
}
