package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openenterprise/nvkv"
)

// ErrNotErased mirrors memnvram's refusal to program over a destination
// range that doesn't currently read back as fully erased.
var ErrNotErased = errors.New("kvctl: write destination not erased")

// fileMedium is a host-side nvkv.Medium backed by a plain OS file, so kvctl
// can exercise the store against a real persistent image instead of the
// in-RAM memnvram.Medium the test suite uses. Layout is identical to
// memnvram: [0, size-reserved) is main, [size-reserved, size) is reserved.
type fileMedium struct {
	f        *os.File
	size     nvkv.Offset
	reserved nvkv.Offset
}

// openFileMedium opens (or creates, filled with the erased pattern) a
// file-backed medium of the given total size and reserved-area size.
func openFileMedium(path string, size, reserved nvkv.Offset) (*fileMedium, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("kvctl: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() != int64(size) {
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = 0xFF
		}
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("kvctl: initialize %s: %w", path, err)
		}
	}

	return &fileMedium{f: f, size: size, reserved: reserved}, nil
}

func (m *fileMedium) Size() nvkv.Offset     { return m.size }
func (m *fileMedium) Reserved() nvkv.Offset { return m.reserved }

func (m *fileMedium) Read(dst []byte, start, length nvkv.Offset) error {
	_, err := m.f.ReadAt(dst[:length], int64(start))
	return err
}

func (m *fileMedium) Write(src []byte, start, length nvkv.Offset) error {
	existing := make([]byte, length)
	if _, err := m.f.ReadAt(existing, int64(start)); err != nil {
		return err
	}
	for _, b := range existing {
		if b != 0xFF {
			return ErrNotErased
		}
	}
	_, err := m.f.WriteAt(src[:length], int64(start))
	return err
}

func (m *fileMedium) mainEnd() nvkv.Offset { return m.size - m.reserved }

func (m *fileMedium) EraseMain() error {
	return m.fillRange(0, m.mainEnd())
}

func (m *fileMedium) EraseReserve() error {
	return m.fillRange(m.mainEnd(), m.size)
}

func (m *fileMedium) fillRange(start, end nvkv.Offset) error {
	buf := make([]byte, end-start)
	for i := range buf {
		buf[i] = 0xFF
	}
	_, err := m.f.WriteAt(buf, int64(start))
	return err
}

func (m *fileMedium) Close() error {
	return m.f.Close()
}
