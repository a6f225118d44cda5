// Package config holds the tool configuration: HID report addressing,
// discovery vendor id and the pre-v8 protocol timing defaults.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var global Config

// DefaultDirectory returns the path to the default configuration directory.
func DefaultDirectory() string {
	return filepath.Join(xdg.ConfigHome, "cirque-fw-update")
}

// DefaultFilename returns the default configuration filename.
func DefaultFilename() string {
	return "cli.toml"
}

// DefaultPath returns the path to the default configuration file.
func DefaultPath() string {
	return filepath.Join(DefaultDirectory(), DefaultFilename())
}

// Global returns the global configuration structure.
func Global() *Config {
	return &global
}

// Load loads the global configuration structure from viper.
func Load(v *viper.Viper) error {
	return global.Load(v)
}

// Save saves the global configuration structure to viper.
func Save(v *viper.Viper) error {
	global.viper = v
	return global.Save()
}

// SetDefaults registers the default values with viper so that partial
// configuration files unmarshal sensibly.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("report_id", Default.ReportID)
	v.SetDefault("vendor_id", Default.VendorID)
	v.SetDefault("timing.region_format_delay_ms_per_1k", Default.Timing.RegionFormatDelayMsPer1K)
	v.SetDefault("timing.byte_write_delay_us", Default.Timing.ByteWriteDelayUs)
}

// ResetDefaults resets the global configuration to defaults.
func ResetDefaults() {
	global = Default
}

// Timing carries the delays used when the device does not report its own
// (status version < 8). The FormatImage settle delay is fixed by the
// protocol and not configurable.
type Timing struct {
	// RegionFormatDelayMsPer1K is the wait after FormatRegion, per started
	// KiB of region size.
	RegionFormatDelayMsPer1K int `mapstructure:"region_format_delay_ms_per_1k"`

	// ByteWriteDelayUs is the wait after WriteData, per payload byte.
	ByteWriteDelayUs int `mapstructure:"byte_write_delay_us"`
}

// Config contains the CLI configuration.
type Config struct {
	viper *viper.Viper

	// ReportID is the HID feature report id used by the bootloader.
	ReportID int `mapstructure:"report_id"`

	// VendorID is the four-hex-digit HID vendor id matched during device
	// discovery.
	VendorID string `mapstructure:"vendor_id"`

	Timing Timing `mapstructure:"timing"`
}

// Load loads the configuration structure from viper.
func (cfg *Config) Load(v *viper.Viper) error {
	cfg.viper = v
	return v.Unmarshal(cfg)
}

// Save saves the configuration structure to viper.
func (cfg *Config) Save() error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg.viper.Set("report_id", cfg.ReportID)
	cfg.viper.Set("vendor_id", cfg.VendorID)
	cfg.viper.Set("timing.region_format_delay_ms_per_1k", cfg.Timing.RegionFormatDelayMsPer1K)
	cfg.viper.Set("timing.byte_write_delay_us", cfg.Timing.ByteWriteDelayUs)

	return cfg.viper.WriteConfig()
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if cfg.ReportID < 0 || cfg.ReportID > 255 {
		return fmt.Errorf("config: report_id %d out of range [0, 255]", cfg.ReportID)
	}
	if len(cfg.VendorID) != 4 {
		return fmt.Errorf("config: vendor_id %q must be four hex digits", cfg.VendorID)
	}
	for _, c := range cfg.VendorID {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return fmt.Errorf("config: vendor_id %q must be four hex digits", cfg.VendorID)
		}
	}
	if cfg.Timing.RegionFormatDelayMsPer1K < 0 {
		return fmt.Errorf("config: region_format_delay_ms_per_1k must not be negative")
	}
	if cfg.Timing.ByteWriteDelayUs < 0 {
		return fmt.Errorf("config: byte_write_delay_us must not be negative")
	}
	return nil
}
