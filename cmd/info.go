package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cirque-corp/chromeos-cirque-fw-update/bootloader"
	"github.com/cirque-corp/chromeos-cirque-fw-update/config"
)

// hex16 formats a 16-bit identifier the way the device labels print it.
func hex16(v uint16) string {
	return fmt.Sprintf("%04X", v)
}

var infoCmd = &cobra.Command{
	Use:   "info <device>",
	Short: "Show device vendor, product and firmware revision",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		cfg := config.Global()

		client, err := bootloader.Open(args[0], byte(cfg.ReportID))
		cobra.CheckErr(err)
		defer client.Close()

		fmt.Printf("Querying device %s\n", args[0])
		info, err := client.GetVersionInfo()
		cobra.CheckErr(err)

		fmt.Printf("  VID %s  PID %s  REV %s\n", hex16(info.VID), hex16(info.PID), hex16(info.Rev))
	},
}

var fwVersionCmd = &cobra.Command{
	Use:   "fw-version <device>",
	Short: "Print the firmware version as MAJOR.MINOR",
	Long:  "fw-version prints the bare firmware version for scripting.",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		cfg := config.Global()

		client, err := bootloader.Open(args[0], byte(cfg.ReportID))
		cobra.CheckErr(err)
		defer client.Close()

		info, err := client.GetVersionInfo()
		cobra.CheckErr(err)

		fmt.Printf("%02X.%02X\n", info.Rev>>8, info.Rev&0xFF)
	},
}
