package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cirque-corp/chromeos-cirque-fw-update/config"
	"github.com/cirque-corp/chromeos-cirque-fw-update/version"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:     "cirque-fw-update",
		Short:   "Firmware update tool for Cirque touchpads",
		Version: version.Software,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initVersions() {
	cobra.AddTemplateFunc("toolchain", func() interface{} { return version.Toolchain() })

	rootCmd.SetVersionTemplate(`Software version: {{.Version}}
Go toolchain version: {{ toolchain }}
`)
}

// ensureConfigExists creates the config file with defaults if it doesn't exist.
func ensureConfigExists(v *viper.Viper, configPath string) {
	if _, err := os.Stat(configPath); !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if _, err := os.Create(configPath); err != nil {
		cobra.CheckErr(fmt.Errorf("failed to create configuration file: %w", err))
	}
	config.ResetDefaults()
	_ = config.Save(v)
}

func initConfig() {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		configDir := config.DefaultDirectory()

		v.AddConfigPath(configDir)
		v.SetConfigType("toml")
		v.SetConfigName(config.DefaultFilename())

		_ = os.MkdirAll(configDir, 0o700)
		ensureConfigExists(v, filepath.Join(configDir, config.DefaultFilename()))
	}

	_ = v.ReadInConfig()

	// Load global configuration.
	err := config.Load(v)
	cobra.CheckErr(err)
	err = config.Global().Validate()
	cobra.CheckErr(err)
}

func init() {
	initVersions()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file to use")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(fwVersionCmd)
	rootCmd.AddCommand(rawDataCmd)
}
