package config

// Default is the default configuration: report id 7 and the Cirque vendor
// id, with the pre-v8 protocol timing from the bootloader documentation.
var Default = Config{
	ReportID: 7,
	VendorID: "0488",
	Timing: Timing{
		RegionFormatDelayMsPer1K: 50,
		ByteWriteDelayUs:         10,
	},
}
