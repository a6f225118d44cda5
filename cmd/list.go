package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cirque-corp/chromeos-cirque-fw-update/bootloader"
	"github.com/cirque-corp/chromeos-cirque-fw-update/config"
	"github.com/cirque-corp/chromeos-cirque-fw-update/hid"
	"github.com/cirque-corp/chromeos-cirque-fw-update/table"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List connected Cirque touchpads",
	Args:    cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		cfg := config.Global()

		devices, err := hid.FindDevices(cfg.VendorID)
		cobra.CheckErr(err)

		table := table.New()
		table.SetHeader([]string{"Device", "VID", "PID", "Firmware"})

		var output [][]string
		for _, path := range devices {
			row := []string{path, "-", "-", "-"}
			if info := queryDevice(path, byte(cfg.ReportID)); info != nil {
				row[1] = hex16(info.VID)
				row[2] = hex16(info.PID)
				row[3] = hex16(info.Rev)
			}
			output = append(output, row)
		}

		table.AppendBulk(output)
		table.Render()
	},
}

// queryDevice best-effort reads the version block; devices that are busy or
// mid-update simply show up without attributes.
func queryDevice(path string, reportID byte) *bootloader.VersionInfo {
	client, err := bootloader.Open(path, reportID)
	if err != nil {
		return nil
	}
	defer client.Close()

	info, err := client.GetVersionInfo()
	if err != nil {
		return nil
	}
	return info
}
