// Accelsock-sim streams synthetic accelerometer readings to an accelsock
// server, for trying the server without a phone.
//
// Usage:
//
//	accelsock-sim --url wss://192.168.1.20:5000/ws --ca local-ca.crt
//	accelsock-sim --discover --insecure --headless --count 50
//
// Without --headless it runs an interactive terminal UI where the arrow keys
// tilt the simulated device.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/accelsock/internal/discovery"
	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/simulator"
	"github.com/muurk/accelsock/internal/ui"
	"github.com/muurk/accelsock/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Flags
var (
	targetURL   string
	discover    bool
	scanTimeout time.Duration
	insecure    bool
	caFile      string
	origin      string
	interval    time.Duration
	count       int
	headless    bool
)

var rootCmd = &cobra.Command{
	Use:   "accelsock-sim",
	Short: "Stream synthetic accelerometer readings to an accelsock server",
	Long: `Connects to an accelsock server's socket channel the way the browser page
does and streams synthetic readings: gravity on Z plus a gentle sway.

The server is given with --url, or found on the local network with
--discover when it runs with --advertise.

Logging is silent unless ACCELSOCK_LOG_LEVEL is set.`,
	Example: `  # Interactive UI against a known server, trusting its certificate
  accelsock-sim --url wss://192.168.1.20:5000/ws --ca local-ca.crt

  # Find the server over mDNS and send 50 readings without a UI
  accelsock-sim --discover --insecure --headless --count 50

  # Faster stream
  accelsock-sim --url wss://localhost:5000/ws --insecure --interval 20ms`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSimulator,
	Version:      version.Full(),
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.Flags()
	flags.StringVar(&targetURL, "url", "", "Socket channel URL (e.g. wss://host:5000/ws)")
	flags.BoolVar(&discover, "discover", false, "Find the server over mDNS")
	flags.DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long --discover waits for a server")
	flags.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	flags.StringVar(&caFile, "ca", "", "PEM certificate to trust (e.g. the server's local-ca.crt)")
	flags.StringVar(&origin, "origin", "", "Origin header to send")
	flags.DurationVar(&interval, "interval", simulator.DefaultInterval, "Time between readings")
	flags.IntVar(&count, "count", 0, "Stop after this many readings (0 = until quit)")
	flags.BoolVar(&headless, "headless", false, "Send readings without the terminal UI")

	rootCmd.MarkFlagsMutuallyExclusive("url", "discover")
}

func runSimulator(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	if interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url, err := resolveTarget(ctx)
	if err != nil {
		return err
	}

	opts := simulator.DialOptions{
		InsecureSkipVerify: insecure,
		CAFile:             caFile,
		Origin:             origin,
	}

	if headless || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runHeadless(ctx, url, opts)
	}
	return runInteractive(url, opts)
}

func resolveTarget(ctx context.Context) (string, error) {
	if targetURL != "" {
		return targetURL, nil
	}
	if !discover {
		return "", errors.New("either --url or --discover is required")
	}

	fmt.Fprintf(os.Stderr, "Looking for an accelsock server (timeout: %s)...\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	svc, err := scanner.FindFirst(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Found %s\n", svc)
	return svc.SocketURL(), nil
}

func runHeadless(ctx context.Context, url string, opts simulator.DialOptions) error {
	client, err := simulator.Dial(ctx, url, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintf(os.Stderr, "Connected to %s (session %s)\n", url, client.SessionID())

	sent, err := simulator.RunHeadless(ctx, client, simulator.NewMotion(), interval, count)
	fmt.Fprintf(os.Stderr, "Sent %d readings\n", sent)
	if err != nil {
		logging.Warn("Streaming stopped", zap.Error(err))
	}
	return err
}

func runInteractive(url string, opts simulator.DialOptions) error {
	final, err := ui.RunSimulator(ui.SimulatorConfig{
		Target: url,
		Connect: func(ctx context.Context) (ui.Streamer, error) {
			client, err := simulator.Dial(ctx, url, opts)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Interval: interval,
		Count:    count,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Sent %d readings\n", final.Sent)
	return final.Err
}
