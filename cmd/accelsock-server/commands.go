package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/accelsock/internal/certs"
	"github.com/muurk/accelsock/internal/config"
)

// gencert command flags
var (
	genCertPath string
	genKeyPath  string
	genHosts    []string
	genDays     int
	genForce    bool
	genLAN      bool
)

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Generate a self-signed TLS certificate",
	Long: `Generate a self-signed certificate and key for the server.

The certificate covers localhost, 127.0.0.1 and ::1, plus any --host values.
With --lan, the machine's non-loopback IPv4 addresses are added too, which is
what a phone on the same network will connect to.

The certificate is its own CA: install it on the phone (or accept the
browser warning once) before opening the page.`,
	Example: `  # Generate local-ca.crt / local-ca.key in the current directory
  accelsock-server gencert --lan

  # Add a hostname and replace existing files
  accelsock-server gencert --host laptop.local --force`,
	RunE: runGencert,
}

func init() {
	flags := gencertCmd.Flags()
	flags.StringVar(&genCertPath, "cert", certs.DefaultCertFile, "Output path for the certificate")
	flags.StringVar(&genKeyPath, "key", certs.DefaultKeyFile, "Output path for the private key")
	flags.StringSliceVar(&genHosts, "host", nil, "Extra DNS name or IP the certificate is valid for (repeatable)")
	flags.IntVar(&genDays, "days", 365, "Validity in days")
	flags.BoolVar(&genForce, "force", false, "Overwrite existing files")
	flags.BoolVar(&genLAN, "lan", false, "Include this machine's LAN IPv4 addresses")
}

func runGencert(cmd *cobra.Command, args []string) error {
	params := certs.DefaultCertParams()
	params.ValidDays = genDays
	params.Hosts = append(params.Hosts, genHosts...)

	if genLAN {
		ips, err := lanAddresses()
		if err != nil {
			return fmt.Errorf("failed to list network interfaces: %w", err)
		}
		params.Hosts = append(params.Hosts, ips...)
	}

	cert, err := certs.GenerateSelfSigned(params)
	if err != nil {
		return err
	}

	if err := cert.WriteFiles(genCertPath, genKeyPath, genForce); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	fmt.Printf("Certificate: %s\n", genCertPath)
	fmt.Printf("Private key: %s\n", genKeyPath)
	fmt.Printf("Valid until: %s\n", cert.Certificate.NotAfter.Format("2006-01-02"))
	fmt.Println("Hosts:")
	for _, h := range params.Hosts {
		fmt.Printf("  - %s\n", h)
	}
	return nil
}

// lanAddresses returns the non-loopback IPv4 addresses of interfaces that
// are up.
func lanAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				ips = append(ips, ip4.String())
			}
		}
	}
	return ips, nil
}

// config command flags
var configWrite bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the server config file",
	Long: `Print the config file location and the effective configuration.

With --write, the defaults are saved to the config file so they can be
edited. An existing file is left untouched.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configWrite, "write", false, "Write the default configuration to the config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}

	if configWrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	}

	cfg, usedPath, err := config.LoadDefault()
	if err != nil {
		return err
	}
	if usedPath == "" {
		fmt.Printf("Config file: %s (not present, using defaults)\n", path)
	} else {
		fmt.Printf("Config file: %s\n", usedPath)
	}
	fmt.Printf("  Listen:     %s\n", cfg.Addr())
	fmt.Printf("  Cert:       %s\n", cfg.CertPath)
	fmt.Printf("  Key:        %s\n", cfg.KeyPath)
	fmt.Printf("  Log level:  %s\n", cfg.EffectiveLogLevel())
	fmt.Printf("  Advertise:  %t (%s)\n", cfg.Advertise, cfg.AdvertiseName)
	return nil
}
