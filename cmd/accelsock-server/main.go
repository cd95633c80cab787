// Accelsock-server serves the accelerometer demo page over TLS and logs the
// readings phones stream back over its socket channel.
//
// Usage:
//
//	accelsock-server server [flags]
//	accelsock-server gencert [flags]
//
// See 'accelsock-server server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/accelsock/internal/certs"
	"github.com/muurk/accelsock/internal/config"
	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/server"
	"github.com/muurk/accelsock/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "accelsock-server",
	Short: "Accelerometer streaming demo server",
	Long: `A small TLS server that serves an accelerometer page to phones and logs
the x/y/z readings they stream back over a WebSocket channel.

Browsers only expose motion sensors to secure pages, so the server always
runs over HTTPS. Use 'accelsock-server gencert' to create a self-signed
certificate for your LAN, then trust it on the phone.

To stream synthetic readings without a phone, use 'accelsock-sim'.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(gencertCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command and flags
var (
	certPath       string
	keyPath        string
	host           string
	port           int
	logLevel       string
	debug          bool
	configPath     string
	allowedOrigins []string
	advertise      bool
	advertiseName  string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the accelerometer server",
	Long: `Start the accelsock server.

The page is served at https://<host>:<port>/ and the socket channel at /ws.
Every reading received is logged with the session it came from.

Settings come from the built-in defaults, then the config file (if any),
then flags. The log level falls back to ACCELSOCK_LOG_LEVEL when neither a
flag nor a config file sets it.`,
	Example: `  # Start with local-ca.crt / local-ca.key from the current directory
  accelsock-server server

  # Log every connection and TLS handshake
  accelsock-server server --debug

  # Custom certificate and port
  accelsock-server server --cert /path/to/cert.pem --key /path/to/key.pem --port 8443

  # Advertise over mDNS so 'accelsock-sim --discover' can find it
  accelsock-server server --advertise --name kitchen-laptop`,
	RunE: runServer,
}

func init() {
	flags := serverCmd.Flags()
	flags.StringVar(&certPath, "cert", certs.DefaultCertFile, "Path to TLS certificate file")
	flags.StringVar(&keyPath, "key", certs.DefaultKeyFile, "Path to TLS private key file")
	flags.StringVar(&host, "host", config.DefaultHost, "Listen host (empty = all interfaces)")
	flags.IntVar(&port, "port", config.DefaultPort, "Listen port")
	flags.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging (overrides --log-level)")
	flags.StringVar(&configPath, "config", "", "Path to config file (default: user config dir, if present)")
	flags.StringSliceVar(&allowedOrigins, "allowed-origin", nil, "Allowed browser origin for the socket channel (repeatable, default: any)")
	flags.BoolVar(&advertise, "advertise", false, "Advertise the server over mDNS")
	flags.StringVar(&advertiseName, "name", config.DefaultAdvertiseName, "mDNS instance name")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, usedPath, err := loadServerConfig()
	if err != nil {
		return err
	}

	applyServerFlags(cmd, cfg, usedPath)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.EffectiveLogLevel()); err != nil {
		return err
	}
	defer logging.Sync()

	if usedPath != "" {
		logging.Info("Loaded config file", zap.String("path", usedPath))
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(cmd.Context())
}

func loadServerConfig() (*config.ServerConfig, string, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, configPath, nil
	}
	return config.LoadDefault()
}

// applyServerFlags layers explicitly set flags over the loaded config.
func applyServerFlags(cmd *cobra.Command, cfg *config.ServerConfig, usedPath string) {
	flags := cmd.Flags()

	if flags.Changed("cert") {
		cfg.CertPath = certPath
	}
	if flags.Changed("key") {
		cfg.KeyPath = keyPath
	}
	if flags.Changed("host") {
		cfg.Host = host
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("allowed-origin") {
		cfg.AllowedOrigins = allowedOrigins
	}
	if flags.Changed("advertise") {
		cfg.Advertise = advertise
	}
	if flags.Changed("name") {
		cfg.AdvertiseName = advertiseName
	}

	switch {
	case flags.Changed("log-level"):
		cfg.LogLevel = logLevel
	case usedPath == "" && os.Getenv(logging.LogLevelEnvVar) != "":
		cfg.LogLevel = os.Getenv(logging.LogLevelEnvVar)
	}
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("accelsock-server %s\n", version.Full())
	},
}
