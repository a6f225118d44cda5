package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cirque-corp/chromeos-cirque-fw-update/bootloader"
	"github.com/cirque-corp/chromeos-cirque-fw-update/cmd/common"
	"github.com/cirque-corp/chromeos-cirque-fw-update/config"
	"github.com/cirque-corp/chromeos-cirque-fw-update/devdata"
	"github.com/cirque-corp/chromeos-cirque-fw-update/hid"
)

// feedSettleDelay lets the touch buffer empty out after feeds are disabled.
const feedSettleDelay = 50 * time.Millisecond

var rawDataCmd = &cobra.Command{
	Use:   "rawdata [device]...",
	Short: "Dump diagnostic sensor images",
	Long: "rawdata reads the compensation, raw measurement, uncompensated and\n" +
		"compensated sensor matrices. With no arguments, all connected Cirque\n" +
		"touchpads are queried.",
	Run: func(_ *cobra.Command, args []string) {
		cfg := config.Global()

		devices := args
		if len(devices) == 0 {
			found, err := hid.FindDevices(cfg.VendorID)
			cobra.CheckErr(err)
			devices = found
		}

		for _, path := range devices {
			fmt.Printf("Querying device %s\n", path)
			if err := dumpRawData(path, byte(cfg.ReportID)); err != nil {
				common.Warnf("Warning: %s: %s", path, err)
			}
		}
	},
}

func dumpRawData(path string, reportID byte) error {
	client, err := bootloader.Open(path, reportID)
	if err != nil {
		return err
	}
	defer client.Close()

	if err = client.SanityCheck(); err != nil {
		return err
	}

	imager, err := devdata.New(client)
	if err != nil {
		return err
	}

	rev, dirty, branch, err := imager.FirmwareRevision()
	if err != nil {
		return err
	}
	fmt.Printf("  rev: %d, %s %s\n", rev, pick(dirty, "Dirty", "Pristine"), pick(branch, "Branch", "Trunk"))

	// Disable normal feeds while gathering data.
	restore, err := imager.SuppressFeeds()
	if err != nil {
		return err
	}
	defer func() {
		if err := restore(); err != nil {
			common.Warnf("Warning: %s", err)
		}
	}()

	// Let the touch buffer empty out.
	time.Sleep(feedSettleDelay)

	for _, kind := range []devdata.ImageKind{
		devdata.Compensation,
		devdata.RawMeasurement,
		devdata.Uncompensated,
		devdata.Compensated,
	} {
		image, err := imager.Image(kind)
		if err != nil {
			return err
		}
		fmt.Print(devdata.FormatMatrix(kind.String(), image))
	}

	return nil
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
