package bootloader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cirque-corp/chromeos-cirque-fw-update/checksum"
	"github.com/cirque-corp/chromeos-cirque-fw-update/hid/hidtest"
)

// fillStatus writes a minimal status reply into buf.
func fillStatus(buf []byte, sentinel uint16, version byte, lastError ErrorCode, flags byte, timing [3]byte) {
	buf[1] = byte(sentinel)
	buf[2] = byte(sentinel >> 8)
	buf[3] = version
	buf[4] = byte(lastError)
	buf[5] = flags
	buf[6] = timing[0]
	buf[7] = timing[1]
	buf[8] = timing[2]
}

// fillReadReply writes a ReadMem reply carrying payload into buf.
func fillReadReply(buf []byte, version byte, addr uint32, payload []byte) {
	buf[3] = version
	offset := 6
	if version >= 8 {
		offset = 9
	}
	binary.LittleEndian.PutUint32(buf[offset:], addr)
	binary.LittleEndian.PutUint16(buf[offset+4:], uint16(len(payload)))
	copy(buf[offset+6:], payload)
}

func newTestClient(ep *hidtest.Endpoint) *Client {
	return NewClient(ep, DefaultReportID)
}

func TestCommandFramesArePadded(t *testing.T) {
	ep := &hidtest.Endpoint{}
	c := newTestClient(ep)

	require.NoError(t, c.Reset())
	require.NoError(t, c.Invoke())
	require.NoError(t, c.Flush())
	require.NoError(t, c.Validate(ValidateEntireImage))
	require.NoError(t, c.FormatImage(3, 0x08000400, 0x2C, 0x0020))
	require.NoError(t, c.FormatRegion(0, 0x1000, []byte{1, 2, 3, 4}))
	require.NoError(t, c.WriteData(0x1000, []byte{1, 2, 3, 4}))
	require.NoError(t, c.ExtendedWrite(0x20000900, []byte{5, 6}))

	opcodes := []byte{cmdReset, cmdInvokeBl, cmdFlush, cmdValidate,
		cmdFormatImage, cmdFormatRegion, cmdWrite, cmdWriteMem}

	require.Len(t, ep.Sent, len(opcodes))
	for i, frame := range ep.Sent {
		require.Len(t, frame, ReportLength, "frame %d", i)
		require.Equal(t, byte(DefaultReportID), frame[0], "frame %d", i)
		require.Equal(t, opcodes[i], frame[1], "frame %d", i)
	}
}

func TestGetStatusDecoding(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(_ int, buf []byte) int {
			// Dual layout, active image one, busy, image valid.
			fillStatus(buf, SentinelBl, 0x08, ErrNone, 0x01|0x02|0x08|0x10, [3]byte{4, 10, 50})
			return len(buf)
		},
	}
	c := newTestClient(ep)

	status, err := c.GetStatus()
	require.NoError(t, err)
	require.Equal(t, uint16(SentinelBl), status.Sentinel)
	require.True(t, status.InBootloaderMode())
	require.False(t, status.InApplicationMode())
	require.Equal(t, byte(0x08), status.Version)
	require.Equal(t, ErrNone, status.LastError)
	require.Equal(t, LayoutDual, status.ImageLayout)
	require.Equal(t, ImageOne, status.ActiveImage)
	require.True(t, status.Busy)
	require.True(t, status.ImageValid)
	require.False(t, status.Force)
	require.Equal(t, byte(4), status.AtomicWriteSize)
	require.Equal(t, byte(10), status.ByteWriteDelayUs)
	require.Equal(t, byte(50), status.RegionFormatDelayMsPer1K)
}

func TestGetStatusOldVersionZeroesTiming(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(_ int, buf []byte) int {
			fillStatus(buf, SentinelApp, 0x07, ErrNone, 0, [3]byte{4, 10, 50})
			return len(buf)
		},
	}
	c := newTestClient(ep)

	status, err := c.GetStatus()
	require.NoError(t, err)
	require.True(t, status.InApplicationMode())
	require.Zero(t, status.AtomicWriteSize)
	require.Zero(t, status.ByteWriteDelayUs)
	require.Zero(t, status.RegionFormatDelayMsPer1K)
}

func TestGetStatusUnknownSentinel(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(_ int, buf []byte) int {
			fillStatus(buf, 0x1234, 0x08, ErrNone, 0, [3]byte{})
			return len(buf)
		},
	}
	c := newTestClient(ep)

	_, err := c.GetStatus()
	require.ErrorIs(t, err, ErrReadError)
}

func TestGetStatusShortRead(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(_ int, buf []byte) int {
			fillStatus(buf, SentinelBl, 0x08, ErrNone, 0, [3]byte{})
			return len(buf) - 1
		},
	}
	c := newTestClient(ep)

	_, err := c.GetStatus()
	require.ErrorIs(t, err, ErrReadError)
}

func TestShortWriteFails(t *testing.T) {
	ep := &hidtest.Endpoint{
		SetFeatureCount: func(_ int, buf []byte) int { return len(buf) - 2 },
	}
	c := newTestClient(ep)

	require.ErrorIs(t, c.Reset(), ErrWriteError)
}

func TestExtendedRead(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	for _, version := range []byte{0x07, 0x08} {
		ep := &hidtest.Endpoint{
			Reply: func(_ int, buf []byte) int {
				fillReadReply(buf, version, 0x20000800, payload)
				return len(buf)
			},
		}
		c := newTestClient(ep)

		got, err := c.ExtendedRead(0x20000800, 4)
		require.NoError(t, err)
		require.Equal(t, payload, got, "version %#02x", version)

		// The request goes out at its natural length, not padded.
		require.Len(t, ep.Sent, 1)
		req := ep.Sent[0]
		require.Len(t, req, 8)
		require.Equal(t, byte(DefaultReportID), req[0])
		require.Equal(t, byte(cmdReadMem), req[1])
		require.Equal(t, uint32(0x20000800), binary.LittleEndian.Uint32(req[2:6]))
		require.Equal(t, uint16(4), binary.LittleEndian.Uint16(req[6:8]))
	}
}

func TestExtendedReadBadLength(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(_ int, buf []byte) int {
			buf[3] = 0x08
			// Claim more payload than the frame can carry.
			binary.LittleEndian.PutUint16(buf[13:], ReportLength)
			return len(buf)
		},
	}
	c := newTestClient(ep)

	_, err := c.ExtendedRead(0x20000800, 4)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestExtendedWriteFrame(t *testing.T) {
	ep := &hidtest.Endpoint{}
	c := newTestClient(ep)

	data := []byte{0x11, 0x22, 0x33}
	require.NoError(t, c.ExtendedWrite(0x200E000A, data))

	require.Len(t, ep.Sent, 1)
	frame := ep.Sent[0]
	require.Len(t, frame, ReportLength)
	require.Equal(t, byte(cmdWriteMem), frame[1])
	require.Equal(t, uint32(0x200E000A), binary.LittleEndian.Uint32(frame[2:6]))
	require.Equal(t, uint16(3), binary.LittleEndian.Uint16(frame[6:8]))
	require.Equal(t, data, frame[8:11])

	// Fletcher-16 over opcode through end of payload.
	expected := checksum.Fletcher16(frame[1:11])
	require.Equal(t, expected, binary.LittleEndian.Uint16(frame[11:13]))
}

func TestFormatImageFrame(t *testing.T) {
	ep := &hidtest.Endpoint{}
	c := newTestClient(ep)

	require.NoError(t, c.FormatImage(5, 0x08000400, 0x2C, 0x0020))

	frame := ep.Sent[0]
	require.Equal(t, byte(cmdFormatImage), frame[1])
	require.Equal(t, byte(LayoutSingle), frame[2])
	require.Equal(t, byte(5), frame[3])
	require.Equal(t, uint32(0x08000400), binary.LittleEndian.Uint32(frame[4:8]))
	require.Equal(t, uint16(0x0020), binary.LittleEndian.Uint16(frame[8:10]))
	require.Equal(t, byte(0x2C), frame[10])
	require.Equal(t, byte(DefaultReportID), frame[11])
}

func TestFormatRegionOmitsPayload(t *testing.T) {
	ep := &hidtest.Endpoint{}
	c := newTestClient(ep)

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, c.FormatRegion(2, 0x2000, data))

	frame := ep.Sent[0]
	require.Equal(t, byte(cmdFormatRegion), frame[1])
	require.Equal(t, byte(2), frame[2])
	require.Equal(t, uint32(0x2000), binary.LittleEndian.Uint32(frame[3:7]))
	require.Equal(t, uint32(256), binary.LittleEndian.Uint32(frame[7:11]))
	require.Equal(t, checksum.Fletcher32(data), binary.LittleEndian.Uint32(frame[11:15]))

	// The payload itself is not transmitted here; the rest is padding.
	for i := 15; i < ReportLength; i++ {
		require.Zero(t, frame[i], "byte %d", i)
	}
}

func TestWriteDataFrame(t *testing.T) {
	ep := &hidtest.Endpoint{}
	c := newTestClient(ep)

	data := []byte{9, 8, 7, 6, 5}
	require.NoError(t, c.WriteData(0x3000, data))

	frame := ep.Sent[0]
	require.Equal(t, byte(cmdWrite), frame[1])
	require.Equal(t, uint32(0x3000), binary.LittleEndian.Uint32(frame[2:6]))
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(frame[6:10]))
	require.Equal(t, data, frame[10:15])
}

func sanityReply(bigEndian byte) func(n int, buf []byte) int {
	return func(n int, buf []byte) int {
		switch n {
		case 0: // GetStatus
			fillStatus(buf, SentinelApp, 0x08, ErrNone, 0, [3]byte{})
		case 1: // RAM base read
			fillReadReply(buf, 0x08, 0x20000800, []byte{0x00, 0x08, 0x00, 0x20})
		default: // endian flag read
			fillReadReply(buf, 0x08, 0x20000824, []byte{bigEndian})
		}
		return len(buf)
	}
}

func TestSanityCheck(t *testing.T) {
	ep := &hidtest.Endpoint{Reply: sanityReply(0x01)}
	c := newTestClient(ep)

	require.NoError(t, c.SanityCheck())
	require.True(t, c.IsBigEndian())

	ep = &hidtest.Endpoint{Reply: sanityReply(0x00)}
	c = newTestClient(ep)
	require.NoError(t, c.SanityCheck())
	require.False(t, c.IsBigEndian())
}

func TestSanityCheckBadRAMBase(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(n int, buf []byte) int {
			switch n {
			case 0:
				fillStatus(buf, SentinelApp, 0x08, ErrNone, 0, [3]byte{})
			default:
				fillReadReply(buf, 0x08, 0x20000800, []byte{0xba, 0xad, 0xf0, 0x0d})
			}
			return len(buf)
		},
	}
	c := newTestClient(ep)

	require.ErrorIs(t, c.SanityCheck(), ErrNotReady)
}

func TestSanityCheckWrongMode(t *testing.T) {
	ep := &hidtest.Endpoint{
		Reply: func(_ int, buf []byte) int {
			fillStatus(buf, SentinelBl, 0x08, ErrNone, 0, [3]byte{})
			return len(buf)
		},
	}
	c := newTestClient(ep)

	require.ErrorIs(t, c.SanityCheck(), ErrNotReady)
}

func versionBlock(vid, pid, rev uint16, bigEndian bool) []byte {
	block := make([]byte, 27)
	words := []uint16{vid, pid, rev}
	for i, w := range words {
		if bigEndian {
			block[2*i] = byte(w >> 8)
			block[2*i+1] = byte(w)
		} else {
			block[2*i] = byte(w)
			block[2*i+1] = byte(w >> 8)
		}
	}
	if bigEndian {
		block[26] = 0x01
	}
	return block
}

func TestGetVersionInfoEndianRoundTrip(t *testing.T) {
	// A big-endian device returning byte-swapped words must decode to the
	// same identity as the little-endian case.
	for _, bigEndian := range []bool{false, true} {
		ep := &hidtest.Endpoint{
			Reply: func(_ int, buf []byte) int {
				fillReadReply(buf, 0x08, 0x2000080A, versionBlock(0x0488, 0x1a2b, 0x0103, bigEndian))
				return len(buf)
			},
		}
		c := newTestClient(ep)

		info, err := c.GetVersionInfo()
		require.NoError(t, err)
		require.Equal(t, uint16(0x0488), info.VID, "bigEndian %v", bigEndian)
		require.Equal(t, uint16(0x1a2b), info.PID, "bigEndian %v", bigEndian)
		require.Equal(t, uint16(0x0103), info.Rev, "bigEndian %v", bigEndian)
	}
}

func TestSetBigEndianDecodeHelpers(t *testing.T) {
	c := newTestClient(&hidtest.Endpoint{})

	c.SetBigEndian(false)
	require.Equal(t, uint16(0x2211), c.Uint16At([]byte{0x11, 0x22}))
	require.Equal(t, uint32(0x44332211), c.Uint32At([]byte{0x11, 0x22, 0x33, 0x44}))

	c.SetBigEndian(true)
	require.Equal(t, uint16(0x1122), c.Uint16At([]byte{0x11, 0x22}))
	require.Equal(t, uint32(0x11223344), c.Uint32At([]byte{0x11, 0x22, 0x33, 0x44}))
}
