// Package hidtest provides an in-memory HID endpoint for exercising the
// bootloader client and the update controller without hardware.
package hidtest

import (
	"github.com/cirque-corp/chromeos-cirque-fw-update/hid"
)

// Endpoint is a scripted hid.Endpoint. Every SetFeature buffer is recorded
// in Sent; GetFeature replies are produced by the Reply callback, which
// receives the reply sequence number and fills buf.
type Endpoint struct {
	// Sent holds a copy of every buffer submitted via SetFeature.
	Sent [][]byte

	// Reply fills buf for the n-th GetFeature call (zero-based) and returns
	// the byte count to report. When nil, GetFeature returns len(buf).
	Reply func(n int, buf []byte) int

	// SetFeatureCount optionally overrides the byte count reported by
	// SetFeature. When nil the full buffer length is reported.
	SetFeatureCount func(n int, buf []byte) int

	gets   int
	sets   int
	closed bool
}

var _ hid.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) SetFeature(buf []byte) (int, error) {
	if e.closed {
		return 0, hid.ErrNotConnected
	}
	e.Sent = append(e.Sent, append([]byte(nil), buf...))
	n := len(buf)
	if e.SetFeatureCount != nil {
		n = e.SetFeatureCount(e.sets, buf)
	}
	e.sets++
	return n, nil
}

func (e *Endpoint) GetFeature(buf []byte) (int, error) {
	if e.closed {
		return 0, hid.ErrNotConnected
	}
	n := len(buf)
	if e.Reply != nil {
		n = e.Reply(e.gets, buf)
	}
	e.gets++
	return n, nil
}

func (e *Endpoint) Close() error {
	e.closed = true
	return nil
}
