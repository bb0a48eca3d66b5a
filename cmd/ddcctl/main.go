// Command ddcctl is a small demonstration client: open one I2C bus,
// issue one DDC/CI operation against it, and print the result and the
// retry-statistics report. It is not a feature-code metadata table, an
// EDID parser, or a display-enumeration tool.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/ddcio/ddcio"
	"github.com/ddcio/ddcio/internal/dsa"
	"github.com/ddcio/ddcio/internal/transport"
)

func main() {
	var (
		bus         = pflag.IntP("bus", "b", -1, "I2C bus number, e.g. 2 for /dev/i2c-2")
		op          = pflag.StringP("op", "o", "getvcp", "Operation: getvcp, setvcp, capabilities")
		vcpCode     = pflag.StringP("vcp", "c", "10", "VCP feature code, hex or decimal")
		setValue    = pflag.IntP("value", "V", 0, "Value to write for setvcp")
		configPath  = pflag.StringP("config", "f", "", "Optional YAML config overlaying defaults")
		persistPath = pflag.StringP("persist", "p", "", "Optional DSA persistence file to load/save")
		verbose     = pflag.BoolP("verbose", "v", false, "Debug-level logging")
		help        = pflag.BoolP("help", "h", false, "Display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ddcctl -b <bus> [-o getvcp|setvcp|capabilities] [-c <vcp-code>] [-V <value>]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help || *bus < 0 {
		pflag.Usage()
		if *bus < 0 {
			os.Exit(2)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddcctl: %s\n", err)
		os.Exit(1)
	}

	log := charmlog.NewWithOptions(os.Stderr, charmlog.Options{Level: charmlog.InfoLevel})
	if *verbose {
		log.SetLevel(charmlog.DebugLevel)
	}

	hub := ddc.NewHub(log)

	if *persistPath != "" {
		if err := loadPersistedDSA(hub, *persistPath); err != nil {
			log.Warn("failed to load DSA persistence file", "path", *persistPath, "err", err)
		}
	}

	code, err := parseByte(*vcpCode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddcctl: bad VCP code %q: %s\n", *vcpCode, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	display, err := hub.Open(ctx, *bus, ddc.OpenOptions{
		ReadMode: transport.ReadModeBlock,
		Wait:     cfg.WaitForLock,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddcctl: open bus %d: %s\n", *bus, err)
		os.Exit(1)
	}
	defer display.Close()

	switch *op {
	case "getvcp":
		v, err := display.GetVCP(ctx, code)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ddcctl: getvcp 0x%02x: %s\n", code, err)
			os.Exit(1)
		}
		if !v.Supported {
			fmt.Printf("VCP 0x%02x: unsupported\n", code)
		} else {
			fmt.Printf("VCP 0x%02x: current=%d max=%d\n", code, v.Current, v.Max)
		}
	case "setvcp":
		if err := display.SetVCP(ctx, code, uint16(*setValue)); err != nil {
			fmt.Fprintf(os.Stderr, "ddcctl: setvcp 0x%02x=%d: %s\n", code, *setValue, err)
			os.Exit(1)
		}
		fmt.Printf("VCP 0x%02x set to %d\n", code, *setValue)
	case "capabilities":
		caps, err := display.Capabilities(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ddcctl: capabilities: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n", caps)
	default:
		fmt.Fprintf(os.Stderr, "ddcctl: unknown op %q\n", *op)
		os.Exit(2)
	}

	if err := hub.Stats.Report(os.Stdout); err != nil {
		log.Warn("failed to render stats report", "err", err)
	}

	if *persistPath != "" {
		if err := savePersistedDSA(hub, *persistPath); err != nil {
			log.Warn("failed to save DSA persistence file", "path", *persistPath, "err", err)
		}
	}
}

func loadPersistedDSA(hub *ddc.Hub, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return dsa.Load(hub.DSA, f)
}

func savePersistedDSA(hub *ddc.Hub, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return dsa.Save(hub.DSA, f)
}

func parseByte(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(n), nil
}

// Config is the small set of overridable defaults loaded from an optional
// YAML file (see loadConfig). No command-line flag overrides these fields.
type Config struct {
	Timeout     time.Duration
	WaitForLock bool
}

func defaultConfig() Config {
	return Config{Timeout: 5 * time.Second, WaitForLock: false}
}
