// Package bootloader implements the feature-report protocol spoken by the
// resident bootloader of Cirque touchpads: command framing, Fletcher
// checksumming of memory writes, status decoding and the endianness
// discovery needed to interpret memory reads.
package bootloader

import (
	"encoding/binary"
	"fmt"

	"github.com/cirque-corp/chromeos-cirque-fw-update/checksum"
	"github.com/cirque-corp/chromeos-cirque-fw-update/hid"
)

// ReportLength is the fixed protocol frame size. Every command frame is
// padded to this length before submission, and every reply is read at this
// length; the one exception is the ReadMem request, which goes out at its
// natural size.
const ReportLength = 531

// DefaultReportID is the feature report id used by Cirque touchpads.
const DefaultReportID = 7

// Command opcodes, placed in the second byte of each frame.
const (
	cmdWrite        = 0
	cmdFlush        = 1
	cmdValidate     = 2
	cmdReset        = 3
	cmdFormatImage  = 4
	cmdFormatRegion = 5
	cmdInvokeBl     = 6
	cmdWriteMem     = 7
	cmdReadMem      = 8
)

// Well-known device memory addresses.
const (
	addrRAMBase      = 0x20000800
	addrVersionBlock = 0x2000080A
	addrEndianFlag   = 0x20000824
)

// statusHeaderLen is the minimum reply prefix GetStatus decodes.
const statusHeaderLen = 9

// VersionInfo is the device identity read from the version block.
type VersionInfo struct {
	VID uint16
	PID uint16
	Rev uint16
}

// Client drives the bootloader protocol over one exclusively-owned HID
// endpoint. It is not safe for concurrent use; the protocol itself is
// strictly sequential.
type Client struct {
	ep       hid.Endpoint
	reportID byte

	// bigEndian is discovered by SanityCheck from the device's endian flag
	// byte and may be flipped by the updater's checksum-mismatch retry.
	bigEndian bool

	// statusVersion records the schema version from the most recent status
	// or read reply. Reply decoding uses each reply's own version byte, not
	// this recorded value.
	statusVersion byte
}

// NewClient wraps an open HID endpoint. The caller retains ownership of the
// endpoint only until Close.
func NewClient(ep hid.Endpoint, reportID byte) *Client {
	return &Client{ep: ep, reportID: reportID}
}

// Open opens the hidraw node at path.
func Open(path string, reportID byte) (*Client, error) {
	ep, err := hid.Open(path)
	if err != nil {
		return nil, err
	}
	return NewClient(ep, reportID), nil
}

// Close releases the underlying endpoint.
func (c *Client) Close() error {
	return c.ep.Close()
}

// IsBigEndian reports the endianness recorded for the current session.
func (c *Client) IsBigEndian() bool {
	return c.bigEndian
}

// SetBigEndian overrides the session endianness. The updater uses this when
// a checksum mismatch suggests the wrong byte order was assumed.
func (c *Client) SetBigEndian(bigEndian bool) {
	c.bigEndian = bigEndian
}

// header starts a command frame with the report id and opcode.
func (c *Client) header(opcode byte) []byte {
	return []byte{c.reportID, opcode}
}

func appendU16(buf []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(buf, v)
}

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

// pad right-pads buf with zeros to the protocol frame size.
func pad(buf []byte) []byte {
	for len(buf) < ReportLength {
		buf = append(buf, 0)
	}
	return buf
}

// setFeature submits buf and enforces the full-count success contract.
func (c *Client) setFeature(buf []byte) error {
	sent, err := c.ep.SetFeature(buf)
	if err != nil {
		return fmt.Errorf("bootloader: set feature: %w", err)
	}
	if sent != len(buf) {
		return fmt.Errorf("%w: sent %d of %d bytes", ErrWriteError, sent, len(buf))
	}
	return nil
}

// submit pads a command frame and sends it.
func (c *Client) submit(buf []byte) error {
	return c.setFeature(pad(buf))
}

// GetStatus reads and decodes the device status. It records the reply's
// status schema version on the client.
func (c *Client) GetStatus() (*Status, error) {
	buf := pad([]byte{c.reportID})

	received, err := c.ep.GetFeature(buf)
	if err != nil {
		return nil, fmt.Errorf("bootloader: get status: %w", err)
	}
	if received != len(buf) {
		return nil, fmt.Errorf("%w: received %d of %d bytes", ErrReadError, received, len(buf))
	}

	status, err := decodeStatus(buf)
	if err != nil {
		return nil, err
	}
	c.statusVersion = status.Version
	return status, nil
}

// ExtendedRead reads length bytes of device memory at addr. The request is
// submitted at its natural size; the reply is a full-length status-shaped
// frame whose payload offset depends on the status schema version.
func (c *Client) ExtendedRead(addr uint32, length uint16) ([]byte, error) {
	req := c.header(cmdReadMem)
	req = appendU32(req, addr)
	req = appendU16(req, length)

	if err := c.setFeature(req); err != nil {
		return nil, err
	}

	reply := make([]byte, ReportLength)
	reply[0] = c.reportID
	received, err := c.ep.GetFeature(reply)
	if err != nil {
		return nil, fmt.Errorf("bootloader: read memory: %w", err)
	}
	if received != len(reply) {
		return nil, fmt.Errorf("%w: received %d of %d bytes", ErrReadError, received, len(reply))
	}

	return c.parseReadReply(reply)
}

// parseReadReply extracts the payload from a ReadMem reply: address echo,
// length, then payload, at an offset gated by the reply's own version byte.
func (c *Client) parseReadReply(reply []byte) ([]byte, error) {
	offset := 6
	if reply[3] >= 8 {
		offset = 9
	}
	c.statusVersion = reply[3]

	length := int(binary.LittleEndian.Uint16(reply[offset+4 : offset+6]))
	if length > ReportLength-offset-6 {
		return nil, fmt.Errorf("%w: read reply length %d exceeds frame", ErrProtocol, length)
	}

	payload := make([]byte, length)
	copy(payload, reply[offset+6:offset+6+length])
	return payload, nil
}

// ExtendedWrite writes data to device memory at addr. The frame carries a
// Fletcher-16 over everything from the opcode through the payload.
func (c *Client) ExtendedWrite(addr uint32, data []byte) error {
	buf := c.header(cmdWriteMem)
	buf = appendU32(buf, addr)
	buf = appendU16(buf, uint16(len(data)))
	buf = append(buf, data...)
	buf = appendU16(buf, checksum.Fletcher16(buf[1:]))

	return c.submit(buf)
}

// Reset restarts the device, ending the bootloader session.
func (c *Client) Reset() error {
	return c.submit(c.header(cmdReset))
}

// Invoke asks running application firmware to enter the bootloader.
func (c *Client) Invoke() error {
	return c.submit(c.header(cmdInvokeBl))
}

// Flush commits buffered flash writes.
func (c *Client) Flush() error {
	return c.submit(c.header(cmdFlush))
}

// Validate starts asynchronous verification of the flash image. Callers
// must poll GetStatus for the outcome.
func (c *Client) Validate(v ValidationType) error {
	buf := c.header(cmdValidate)
	buf = append(buf, byte(v))
	return c.submit(buf)
}

// FormatImage declares a fresh single-layout image with numRegions regions.
func (c *Client) FormatImage(numRegions byte, entryPoint uint32, i2cAddr byte, hidDescAddr uint16) error {
	buf := c.header(cmdFormatImage)
	buf = append(buf, byte(LayoutSingle), numRegions)
	buf = appendU32(buf, entryPoint)
	buf = appendU16(buf, hidDescAddr)
	buf = append(buf, i2cAddr, c.reportID)

	return c.submit(buf)
}

// FormatRegion declares region number's extent and payload checksum. The
// payload bytes themselves are delivered by subsequent WriteData calls.
func (c *Client) FormatRegion(region byte, offset uint32, data []byte) error {
	buf := c.header(cmdFormatRegion)
	buf = append(buf, region)
	buf = appendU32(buf, offset)
	buf = appendU32(buf, uint32(len(data)))
	buf = appendU32(buf, checksum.Fletcher32(data))

	return c.submit(buf)
}

// WriteData streams one chunk of region payload at the given absolute write
// offset. No per-frame checksum is added at this layer; integrity is covered
// by the region's Fletcher-32 declared in FormatRegion.
func (c *Client) WriteData(writeOffset uint32, data []byte) error {
	buf := c.header(cmdWrite)
	buf = appendU32(buf, writeOffset)
	buf = appendU32(buf, uint32(len(data)))
	buf = append(buf, data...)

	return c.submit(buf)
}

// SanityCheck verifies the device's status reports one of the
// application-firmware sentinels (bootloader-mode sentinels fail the check),
// that its RAM base reads back as expected, and records the device's
// endianness flag for the session.
func (c *Client) SanityCheck() error {
	status, err := c.GetStatus()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	switch status.Sentinel {
	case SentinelApp, SentinelAppMI, SentinelAppLegacy:
	default:
		return fmt.Errorf("%w: unexpected sentinel %#04x", ErrNotReady, status.Sentinel)
	}

	base, err := c.ExtendedRead(addrRAMBase, 4)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if len(base) < 4 || base[0] != 0x00 || base[1] != 0x08 || base[2] != 0x00 || base[3] != 0x20 {
		return fmt.Errorf("%w: RAM base readback mismatch", ErrNotReady)
	}

	endian, err := c.ExtendedRead(addrEndianFlag, 1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if len(endian) < 1 {
		return fmt.Errorf("%w: empty endian flag read", ErrNotReady)
	}
	c.bigEndian = endian[0]&0x01 != 0

	return nil
}

// GetVersionInfo reads the device version block and decodes VID, PID and
// firmware revision. The last byte of the block is the authoritative endian
// flag for interpreting the block itself.
func (c *Client) GetVersionInfo() (*VersionInfo, error) {
	const blockLen = addrEndianFlag - addrVersionBlock + 1

	block, err := c.ExtendedRead(addrVersionBlock, blockLen)
	if err != nil {
		return nil, err
	}
	if len(block) < blockLen {
		return nil, fmt.Errorf("%w: short version block (%d bytes)", ErrReadError, len(block))
	}

	info := &VersionInfo{}
	if block[blockLen-1]&0x01 == 0 {
		info.VID = uint16(block[0]) | uint16(block[1])<<8
		info.PID = uint16(block[2]) | uint16(block[3])<<8
		info.Rev = uint16(block[4]) | uint16(block[5])<<8
	} else {
		info.VID = uint16(block[1]) | uint16(block[0])<<8
		info.PID = uint16(block[3]) | uint16(block[2])<<8
		info.Rev = uint16(block[5]) | uint16(block[4])<<8
	}

	return info, nil
}

// Uint16At decodes a 16-bit value from raw device memory bytes honoring the
// session endianness.
func (c *Client) Uint16At(b []byte) uint16 {
	if c.bigEndian {
		return uint16(b[0])<<8 | uint16(b[1])
	}
	return uint16(b[0]) | uint16(b[1])<<8
}

// Uint32At decodes a 32-bit value from raw device memory bytes honoring the
// session endianness.
func (c *Client) Uint32At(b []byte) uint32 {
	if c.bigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
