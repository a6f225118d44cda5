// Package updater sequences the bootloader commands that reflash a Cirque
// touchpad from a parsed firmware image: format, stream, flush, validate,
// reset, with status polling and device-mandated settle delays between
// steps.
package updater

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cirque-corp/chromeos-cirque-fw-update/bootloader"
	"github.com/cirque-corp/chromeos-cirque-fw-update/hexfile"
)

// MaxDataPayloadSize is the largest WriteData chunk. Must be even.
const MaxDataPayloadSize = 520

// Default protocol timing. Devices with status version >= 8 report their own
// region-format and byte-write delays, which take precedence.
const (
	formatImageDelay       = 100 * time.Millisecond
	defaultRegionDelayMs   = 50 // per started KiB of region size
	defaultByteWriteUs     = 10 // per payload byte
	minWriteSettle         = time.Millisecond
	flushSettleDelay       = 10 * time.Millisecond
	validateSettleDelay    = 10 * time.Millisecond
	resetSettleDelay       = 100 * time.Millisecond
	invokeSettleDelay      = 100 * time.Millisecond
	targetI2CAddress       = 0x2C
	targetHIDDescAddr      = 0x0020
	keepDefaultI2CAddress  = 0xFF
	keepDefaultHIDDescAddr = 0xFFFF
)

// errValidateMismatch tags a checksum mismatch observed right after
// Validate, the one device error the updater may recover from.
var errValidateMismatch = errors.New("updater: image validation reported checksum mismatch")

// Option configures an Updater.
type Option func(*Updater)

// WithLogf sets a step-by-step protocol logger.
func WithLogf(logf func(format string, args ...interface{})) Option {
	return func(u *Updater) { u.logf = logf }
}

// WithProgress sets a callback invoked after every payload chunk with the
// total bytes written so far and the overall payload size.
func WithProgress(progress func(written, total int)) Option {
	return func(u *Updater) { u.progress = progress }
}

// WithTiming overrides the pre-v8 default delays, typically from the tool
// configuration. Devices reporting their own timing still win.
func WithTiming(regionDelayMsPer1K, byteWriteDelayUs int) Option {
	return func(u *Updater) {
		u.regionDelayMs = regionDelayMsPer1K
		u.byteWriteUs = byteWriteDelayUs
	}
}

// Updater drives one firmware update over an exclusively-owned bootloader
// client.
type Updater struct {
	client *bootloader.Client

	logf     func(format string, args ...interface{})
	progress func(written, total int)
	sleep    func(time.Duration)

	regionDelayMs int
	byteWriteUs   int

	// retryOnMismatch allows one endianness-flip restart after a
	// post-validate checksum mismatch. Armed when the initial sanity check
	// fails and the session endianness is therefore a guess.
	retryOnMismatch bool
}

// New creates an Updater for the given client.
func New(client *bootloader.Client, opts ...Option) *Updater {
	u := &Updater{
		client:        client,
		logf:          func(string, ...interface{}) {},
		sleep:         time.Sleep,
		regionDelayMs: defaultRegionDelayMs,
		byteWriteUs:   defaultByteWriteUs,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UpdateFirmware checks the device, parses the firmware file and runs the
// full update sequence. File errors propagate verbatim from the parser.
func UpdateFirmware(client *bootloader.Client, fwPath string, opts ...Option) error {
	u := New(client, opts...)

	if err := client.SanityCheck(); err != nil {
		// The device did not identify itself; assume little-endian and allow
		// one endianness-flip retry should validation disagree.
		u.logf("sanity check failed (%v); assuming little-endian", err)
		client.SetBigEndian(false)
		u.retryOnMismatch = true
	}

	list, err := hexfile.Parse(fwPath)
	if err != nil {
		return err
	}
	u.logf("parsed %s: %d records", fwPath, len(list.Records))

	return u.Run(list)
}

// Run executes the update state machine against an already-parsed record
// list. A post-validate checksum mismatch triggers at most one restart with
// the session endianness flipped.
func (u *Updater) Run(list *hexfile.RecordList) error {
	if len(list.Records) == 0 {
		return fmt.Errorf("updater: firmware image contains no records")
	}
	if len(list.Records) > 255 {
		return fmt.Errorf("updater: firmware image has %d regions, at most 255 supported", len(list.Records))
	}
	if len(list.Records[0].Bytes) < 8 {
		return fmt.Errorf("updater: first record too short to carry an entry point")
	}

	for {
		err := u.runOnce(list)
		if err == nil {
			return nil
		}
		if u.retryOnMismatch && errors.Is(err, errValidateMismatch) {
			u.retryOnMismatch = false
			u.client.SetBigEndian(!u.client.IsBigEndian())
			u.logf("validation checksum mismatch; retrying with flipped endianness")
			continue
		}
		return err
	}
}

// runOnce performs one pass of the update sequence, from the status check
// through the final reset.
func (u *Updater) runOnce(list *hexfile.RecordList) error {
	status, err := u.client.GetStatus()
	if err != nil {
		return err
	}
	u.logf("status: sentinel %#04x version %#02x error %s", status.Sentinel, status.Version, status.LastError)

	// A stale device error blocks the update; one reset may clear it.
	if status.LastError != bootloader.ErrNone {
		u.logf("clearing stale device error %s with a reset", status.LastError)
		if err = u.client.Reset(); err != nil {
			return err
		}
		u.sleep(resetSettleDelay)
		if status, err = u.client.GetStatus(); err != nil {
			return err
		}
		if status.LastError != bootloader.ErrNone {
			return &bootloader.DeviceError{Code: status.LastError}
		}
	}

	// Application firmware must hand over to the bootloader first.
	if status.InApplicationMode() {
		u.logf("device in application mode; invoking bootloader")
		if err = u.client.Invoke(); err != nil {
			return err
		}
		u.sleep(invokeSettleDelay)
		if status, err = u.client.GetStatus(); err != nil {
			return err
		}
		u.logf("status: sentinel %#04x version %#02x error %s", status.Sentinel, status.Version, status.LastError)
	}

	regionDelayMs := u.regionDelayMs
	byteWriteUs := u.byteWriteUs
	if status.Version >= 8 {
		regionDelayMs = int(status.RegionFormatDelayMsPer1K)
		byteWriteUs = int(status.ByteWriteDelayUs)
	}
	u.logf("timing: format image %v, region format %d ms/KiB, byte write %d us",
		formatImageDelay, regionDelayMs, byteWriteUs)

	entryPoint := binary.LittleEndian.Uint32(list.Records[0].Bytes[4:8])

	i2cAddr := byte(targetI2CAddress)
	hidDescAddr := uint16(targetHIDDescAddr)
	if status.Version >= 9 {
		// Newer bootloaders keep their own transport addressing.
		i2cAddr = keepDefaultI2CAddress
		hidDescAddr = keepDefaultHIDDescAddr
	}

	u.logf("format image: %d regions, entry point %#08x, i2c %#02x, hid descriptor %#04x",
		len(list.Records), entryPoint, i2cAddr, hidDescAddr)
	if err = u.client.FormatImage(byte(len(list.Records)), entryPoint, i2cAddr, hidDescAddr); err != nil {
		return err
	}
	u.sleep(formatImageDelay)

	for i := range list.Records {
		rec := &list.Records[i]
		u.logf("format region %d: offset %#08x, %d bytes", i, rec.Address, rec.Size())
		if err = u.client.FormatRegion(byte(i), rec.Address, rec.Bytes); err != nil {
			return err
		}
		u.sleep(time.Duration(regionDelayMs*kibibytes(rec.Size())) * time.Millisecond)
		if err = u.requireCleanStatus(); err != nil {
			return err
		}
	}

	total := 0
	for i := range list.Records {
		total += list.Records[i].Size()
	}

	written := 0
	for i := range list.Records {
		rec := &list.Records[i]
		u.logf("writing %d bytes of data", rec.Size())
		for offset := 0; offset < len(rec.Bytes); offset += MaxDataPayloadSize {
			chunk := rec.Bytes[offset:min(offset+MaxDataPayloadSize, len(rec.Bytes))]
			if err = u.client.WriteData(rec.Address+uint32(offset), chunk); err != nil {
				return err
			}
			settle := time.Duration(byteWriteUs*len(chunk)) * time.Microsecond
			if settle < minWriteSettle {
				settle = minWriteSettle
			}
			u.sleep(settle)
			if err = u.requireCleanStatus(); err != nil {
				return err
			}
			written += len(chunk)
			if u.progress != nil {
				u.progress(written, total)
			}
		}
	}

	u.logf("flushing")
	if err = u.client.Flush(); err != nil {
		return err
	}
	u.sleep(flushSettleDelay)
	if err = u.requireCleanStatus(); err != nil {
		return err
	}

	u.logf("validating image")
	if err = u.client.Validate(bootloader.ValidateEntireImage); err != nil {
		return err
	}
	u.sleep(validateSettleDelay)
	if status, err = u.client.GetStatus(); err != nil {
		return err
	}
	if status.LastError == bootloader.ErrChksumMismatch {
		return fmt.Errorf("%w: %w", errValidateMismatch,
			&bootloader.DeviceError{Code: status.LastError})
	}
	if status.LastError != bootloader.ErrNone {
		return &bootloader.DeviceError{Code: status.LastError}
	}

	u.logf("resetting into new firmware")
	if err = u.client.Reset(); err != nil {
		return err
	}
	u.sleep(resetSettleDelay)
	if err = u.requireCleanStatus(); err != nil {
		return err
	}

	u.logf("firmware update successful")
	return nil
}

// requireCleanStatus polls the device and fails on any reported error.
func (u *Updater) requireCleanStatus() error {
	status, err := u.client.GetStatus()
	if err != nil {
		return err
	}
	if status.LastError != bootloader.ErrNone {
		return &bootloader.DeviceError{Code: status.LastError}
	}
	return nil
}

// kibibytes rounds size up to whole KiB, never below one.
func kibibytes(size int) int {
	n := (size + 1023) / 1024
	if n < 1 {
		n = 1
	}
	return n
}
