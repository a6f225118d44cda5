package hexfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cirque-corp/chromeos-cirque-fw-update/checksum"
)

// Preparsed binary cache layout, all integers little-endian:
//
//	"Cirque\0\0"  8-byte magic header
//	uint16        format version (currently 0)
//	uint32        record count
//	per record:   uint32 address, uint32 length, payload bytes,
//	              uint32 Fletcher-32 of the payload
const (
	cacheMagic   = "Cirque"
	cacheVersion = 0
)

var cacheHeader = []byte{'C', 'i', 'r', 'q', 'u', 'e', 0, 0}

// WriteCache serializes the record list to path in the preparsed binary
// cache format. Start addresses are not carried by the cache.
func (l *RecordList) WriteCache(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("hexfile: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err = w.Write(cacheHeader); err != nil {
		return fmt.Errorf("hexfile: %w", err)
	}
	if err = binary.Write(w, binary.LittleEndian, uint16(cacheVersion)); err != nil {
		return fmt.Errorf("hexfile: %w", err)
	}
	if err = binary.Write(w, binary.LittleEndian, uint32(len(l.Records))); err != nil {
		return fmt.Errorf("hexfile: %w", err)
	}

	for i := range l.Records {
		rec := &l.Records[i]
		if err = binary.Write(w, binary.LittleEndian, rec.Address); err != nil {
			return fmt.Errorf("hexfile: %w", err)
		}
		if err = binary.Write(w, binary.LittleEndian, uint32(len(rec.Bytes))); err != nil {
			return fmt.Errorf("hexfile: %w", err)
		}
		if _, err = w.Write(rec.Bytes); err != nil {
			return fmt.Errorf("hexfile: %w", err)
		}
		if err = binary.Write(w, binary.LittleEndian, checksum.Fletcher32(rec.Bytes)); err != nil {
			return fmt.Errorf("hexfile: %w", err)
		}
	}

	if err = w.Flush(); err != nil {
		return fmt.Errorf("hexfile: %w", err)
	}
	return nil
}

// readCache decodes a preparsed binary cache, verifying the per-record
// Fletcher-32 checksums.
func readCache(r io.Reader) (*RecordList, error) {
	br := bufio.NewReader(r)

	header := make([]byte, len(cacheHeader))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, corrupt(err)
	}
	for i, b := range cacheHeader {
		if header[i] != b {
			return nil, fmt.Errorf("%w: bad cache header", ErrCorrupt)
		}
	}

	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, corrupt(err)
	}
	if version != cacheVersion {
		return nil, fmt.Errorf("%w: unsupported cache version %d", ErrCorrupt, version)
	}

	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, corrupt(err)
	}

	list := &RecordList{}
	for i := uint32(0); i < count; i++ {
		var addr, length uint32
		if err := binary.Read(br, binary.LittleEndian, &addr); err != nil {
			return nil, corrupt(err)
		}
		if err := binary.Read(br, binary.LittleEndian, &length); err != nil {
			return nil, corrupt(err)
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, corrupt(err)
		}

		var stored uint32
		if err := binary.Read(br, binary.LittleEndian, &stored); err != nil {
			return nil, corrupt(err)
		}
		if computed := checksum.Fletcher32(payload); computed != stored {
			return nil, fmt.Errorf("%w: cache record %d checksum mismatch (stored %#08x, computed %#08x)",
				ErrCorrupt, i, stored, computed)
		}

		list.Records = append(list.Records, Record{Address: addr, Bytes: payload})
	}

	return list, nil
}

func corrupt(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated cache", ErrCorrupt)
	}
	return fmt.Errorf("hexfile: %w", err)
}
