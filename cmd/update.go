package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cirque-corp/chromeos-cirque-fw-update/bootloader"
	"github.com/cirque-corp/chromeos-cirque-fw-update/cmd/common"
	"github.com/cirque-corp/chromeos-cirque-fw-update/cmd/common/progress"
	"github.com/cirque-corp/chromeos-cirque-fw-update/config"
	"github.com/cirque-corp/chromeos-cirque-fw-update/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update <firmware-file> <device>",
	Short: "Update touchpad firmware",
	Long: "Update flashes the given Intel-HEX firmware image (or preparsed\n" +
		"binary cache) to the touchpad behind the given hidraw device node.",
	Args: cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		cfg := config.Global()
		fwPath, devicePath := args[0], args[1]

		common.Confirm(fmt.Sprintf("Flash %s to %s?", fwPath, devicePath), "firmware update aborted")

		restorePerms, err := widenDevicePermissions(devicePath)
		if err != nil {
			common.Warnf("Warning: failed to adjust device permissions: %s", err)
		} else {
			defer restorePerms()
		}

		client, err := bootloader.Open(devicePath, byte(cfg.ReportID))
		cobra.CheckErr(err)
		defer client.Close()

		opts := []updater.Option{
			updater.WithTiming(cfg.Timing.RegionFormatDelayMsPer1K, cfg.Timing.ByteWriteDelayUs),
			updater.WithProgress(func(written, total int) {
				progress.PrintProgressBar(os.Stderr, "Writing firmware...",
					uint64(written), uint64(total), written == total)
			}),
		}
		if common.IsVerbose() {
			opts = append(opts, updater.WithLogf(func(format string, args ...interface{}) {
				fmt.Printf(format+"\n", args...)
			}))
		}

		err = updater.UpdateFirmware(client, fwPath, opts...)
		cobra.CheckErr(err)

		fmt.Println("Firmware update successful.")
	},
}

// widenDevicePermissions grants other users read/write on the device node
// for the duration of the update, as the updater may run on behalf of a
// less-privileged session. The returned function restores the old mode.
func widenDevicePermissions(path string) (func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mode := info.Mode()

	if err = os.Chmod(path, mode.Perm()|0o006); err != nil {
		return nil, err
	}
	return func() {
		_ = os.Chmod(path, mode.Perm())
	}, nil
}

func init() {
	updateCmd.Flags().AddFlagSet(common.AnswerYesFlag)
	updateCmd.Flags().AddFlagSet(common.VerboseFlag)
}
