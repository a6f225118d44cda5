// Package devdata reads diagnostic sensor images ("raw data") from a Cirque
// touchpad through the bootloader client's memory operations.
package devdata

import (
	"fmt"
	"strings"
)

// Device memory locations used by the imager.
const (
	addrDimensions  = 0x2001080C
	addrScalarFlags = 0x20080018
	addrFwRevision  = 0x20000810
	addrFeedConfig2 = 0x200E0009
	addrFeedControl = 0x200E000A
	addrImageBase   = 0x30000000
)

// maxImageTransferLength bounds one image read transaction.
const maxImageTransferLength = 256

// maxReadyPolls bounds the wait for the device to stage an image; the
// original tool spins forever, which would hang the CLI on a wedged sensor.
const maxReadyPolls = 5000

// ImageKind selects which sensor matrix to capture.
type ImageKind uint32

const (
	Compensation ImageKind = iota + 1
	RawMeasurement
	Uncompensated
	Compensated
)

func (k ImageKind) String() string {
	switch k {
	case Compensation:
		return "Current Compensation Matrix"
	case RawMeasurement:
		return "Live Raw Measurements"
	case Uncompensated:
		return "Live Uncompensated Image"
	case Compensated:
		return "Live Compensated Image"
	default:
		return "Unknown Image"
	}
}

// MemoryBus is the slice of the bootloader client the imager needs.
type MemoryBus interface {
	ExtendedRead(addr uint32, length uint16) ([]byte, error)
	ExtendedWrite(addr uint32, data []byte) error
	IsBigEndian() bool
}

// Imager captures sensor matrices from one touchpad. Geometry and axis
// inversion flags are read once at construction.
type Imager struct {
	bus MemoryBus

	xCount  int
	yCount  int
	invertX bool
	invertY bool
}

// New reads the touchpad geometry and returns an imager for it.
func New(bus MemoryBus) (*Imager, error) {
	dims, err := bus.ExtendedRead(addrDimensions, 2)
	if err != nil {
		return nil, fmt.Errorf("devdata: read dimensions: %w", err)
	}
	if len(dims) < 2 {
		return nil, fmt.Errorf("devdata: short dimensions read")
	}

	flags, err := bus.ExtendedRead(addrScalarFlags, 1)
	if err != nil {
		return nil, fmt.Errorf("devdata: read scalar flags: %w", err)
	}
	if len(flags) < 1 {
		return nil, fmt.Errorf("devdata: short scalar flags read")
	}

	return &Imager{
		bus:     bus,
		xCount:  int(dims[0]),
		yCount:  int(dims[1]),
		invertX: flags[0]&0x01 != 0,
		invertY: flags[0]&0x02 != 0,
	}, nil
}

// Image captures one sensor matrix: request the image, wait for the device
// to stage it, read it in bounded chunks, release it and reshape into a
// Y x X matrix with axis inversion applied.
func (im *Imager) Image(kind ImageKind) ([][]int16, error) {
	base := uint32(addrImageBase) + uint32(kind)<<16

	if err := im.bus.ExtendedWrite(base, []byte{0x01, 0x00}); err != nil {
		return nil, fmt.Errorf("devdata: request image: %w", err)
	}

	var length int
	for poll := 0; ; poll++ {
		if poll >= maxReadyPolls {
			return nil, fmt.Errorf("devdata: image %d never became ready", kind)
		}
		lenBytes, err := im.bus.ExtendedRead(base, 2)
		if err != nil {
			return nil, fmt.Errorf("devdata: poll image length: %w", err)
		}
		if len(lenBytes) < 2 {
			return nil, fmt.Errorf("devdata: short image length read")
		}
		length = int(lenBytes[0]) | int(lenBytes[1])<<8
		if length != 0 {
			break
		}
	}

	buffer := make([]byte, 0, length)
	for offset := 0; offset < length; {
		n := length - offset
		if n > maxImageTransferLength {
			n = maxImageTransferLength
		}
		chunk, err := im.bus.ExtendedRead(base+2+uint32(offset), uint16(n))
		if err != nil {
			return nil, fmt.Errorf("devdata: read image: %w", err)
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("devdata: empty image read")
		}
		buffer = append(buffer, chunk...)
		offset += len(chunk)
	}

	if err := im.bus.ExtendedWrite(base, []byte{0x00, 0x01}); err != nil {
		return nil, fmt.Errorf("devdata: release image: %w", err)
	}

	return im.reshape(im.toInt16(buffer)), nil
}

// CompensationImage captures the current compensation matrix.
func (im *Imager) CompensationImage() ([][]int16, error) {
	return im.Image(Compensation)
}

// RawMeasurementImage captures live pre-demux measurements.
func (im *Imager) RawMeasurementImage() ([][]int16, error) {
	return im.Image(RawMeasurement)
}

// UncompensatedImage captures the live uncompensated image.
func (im *Imager) UncompensatedImage() ([][]int16, error) {
	return im.Image(Uncompensated)
}

// CompensatedImage captures the live compensated image.
func (im *Imager) CompensatedImage() ([][]int16, error) {
	return im.Image(Compensated)
}

// toInt16 decodes the raw byte stream into signed 16-bit samples honoring
// the session endianness.
func (im *Imager) toInt16(data []byte) []int16 {
	out := make([]int16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		var v uint16
		if im.bus.IsBigEndian() {
			v = uint16(data[i])<<8 | uint16(data[i+1])
		} else {
			v = uint16(data[i]) | uint16(data[i+1])<<8
		}
		out = append(out, int16(v))
	}
	return out
}

// reshape folds the flat sample stream into a Y x X matrix and applies the
// device's axis inversion flags.
func (im *Imager) reshape(samples []int16) [][]int16 {
	matrix := make([][]int16, 0, im.yCount)
	for y := 0; y < im.yCount; y++ {
		row := make([]int16, im.xCount)
		for x := 0; x < im.xCount; x++ {
			if idx := y*im.xCount + x; idx < len(samples) {
				row[x] = samples[idx]
			}
		}
		matrix = append(matrix, row)
	}

	if im.invertX {
		for _, row := range matrix {
			for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
	}
	if im.invertY {
		for i, j := 0, len(matrix)-1; i < j; i, j = i+1, j-1 {
			matrix[i], matrix[j] = matrix[j], matrix[i]
		}
	}

	return matrix
}

// FirmwareRevision reads the firmware revision word. Bit 31 flags a dirty
// build, bit 30 a branch build; the low 30 bits are the revision.
func (im *Imager) FirmwareRevision() (rev uint32, dirty, branch bool, err error) {
	raw, err := im.bus.ExtendedRead(addrFwRevision, 4)
	if err != nil {
		return 0, false, false, fmt.Errorf("devdata: read firmware revision: %w", err)
	}
	if len(raw) < 4 {
		return 0, false, false, fmt.Errorf("devdata: short firmware revision read")
	}

	if im.bus.IsBigEndian() {
		rev = uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	} else {
		rev = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	}

	dirty = rev&0x80000000 != 0
	branch = rev&0x40000000 != 0
	rev &= 0x3FFFFFFF
	return rev, dirty, branch, nil
}

// SuppressFeeds disables normal touch reporting so image capture is not
// polluted, returning a restore function that re-enables the previous feed.
func (im *Imager) SuppressFeeds() (restore func() error, err error) {
	cfg2, err := im.bus.ExtendedRead(addrFeedConfig2, 1)
	if err != nil {
		return nil, fmt.Errorf("devdata: read feed config: %w", err)
	}
	ctl, err := im.bus.ExtendedRead(addrFeedControl, 1)
	if err != nil {
		return nil, fmt.Errorf("devdata: read feed control: %w", err)
	}
	if len(cfg2) < 1 || len(ctl) < 1 {
		return nil, fmt.Errorf("devdata: short feed register read")
	}

	if err = im.bus.ExtendedWrite(addrFeedControl, []byte{ctl[0] & 0xF8}); err != nil {
		return nil, fmt.Errorf("devdata: suppress feeds: %w", err)
	}

	return func() error {
		restored := ctl[0]&0xF8 | 1<<(cfg2[0]&0x03)
		if err := im.bus.ExtendedWrite(addrFeedControl, []byte{restored}); err != nil {
			return fmt.Errorf("devdata: restore feeds: %w", err)
		}
		return nil
	}, nil
}

// FormatMatrix renders an image as the aligned comma-separated block the
// original diagnostic tool prints.
func FormatMatrix(title string, image [][]int16) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString(":\n")
	for _, row := range image {
		for _, v := range row {
			fmt.Fprintf(&b, "%6d,", v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
