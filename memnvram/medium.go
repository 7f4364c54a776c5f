// Package memnvram provides an in-RAM nvkv.Medium plus the crash-injection
// hooks nvkv's recovery tests need: disabling an erase so it becomes a
// no-op (simulating a mid-erase power loss), corrupting an area with
// non-erased noise, and poking a header into an arbitrary mid-transition
// pattern.
//
// Grounded on original_source/tests/nvram_mock.cpp from the reference
// implementation, which provides the same three knobs
// (mock_flash_set_erase, mock_flash_fill_with_random, mock_flash_set).
package memnvram

import (
	"errors"

	"github.com/openenterprise/nvkv"
)

// ErrOutOfBounds is returned when a read or write would run past the
// medium's end.
var ErrOutOfBounds = errors.New("memnvram: access out of bounds")

// ErrNotErased is returned by Write when the destination range is not
// fully erased, mirroring a real flash/EEPROM driver's refusal to
// program over existing data.
var ErrNotErased = errors.New("memnvram: write destination not erased")

// Medium is an in-RAM nvkv.Medium backed by a plain byte slice.
type Medium struct {
	buf          []byte
	reserved     nvkv.Offset
	mainErase    bool // true = EraseMain actually erases
	reserveErase bool // true = EraseReserve actually erases
}

// New creates a Medium of the given total size with the given reserved
// area size, filled with the erased byte pattern (as a fresh/blank
// medium would read).
func New(size, reserved nvkv.Offset) *Medium {
	m := &Medium{
		buf:          make([]byte, size),
		reserved:     reserved,
		mainErase:    true,
		reserveErase: true,
	}
	for i := range m.buf {
		m.buf[i] = 0xFF
	}
	return m
}

func (m *Medium) Size() nvkv.Offset     { return nvkv.Offset(len(m.buf)) }
func (m *Medium) Reserved() nvkv.Offset { return m.reserved }

func (m *Medium) Read(dst []byte, start, length nvkv.Offset) error {
	if uint64(start)+uint64(length) > uint64(len(m.buf)) {
		return ErrOutOfBounds
	}
	copy(dst, m.buf[start:start+length])
	return nil
}

func (m *Medium) Write(src []byte, start, length nvkv.Offset) error {
	if uint64(start)+uint64(length) > uint64(len(m.buf)) {
		return ErrOutOfBounds
	}
	for i := nvkv.Offset(0); i < length; i++ {
		if m.buf[start+i] != 0xFF {
			return ErrNotErased
		}
	}
	copy(m.buf[start:start+length], src)
	return nil
}

func (m *Medium) EraseMain() error {
	if m.mainErase {
		fill(m.buf[:m.mainEnd()], 0xFF)
	}
	return nil
}

func (m *Medium) EraseReserve() error {
	if m.reserveErase {
		fill(m.buf[m.mainEnd():], 0xFF)
	}
	return nil
}

func (m *Medium) mainEnd() nvkv.Offset {
	return m.Size() - m.reserved
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// DisableErase makes every EraseMain/EraseReserve call on area a no-op
// until EnableErase is called, simulating a power loss partway through
// the underlying erase primitive: the area's bytes remain whatever they
// were.
func (m *Medium) DisableErase(area nvkv.Area) {
	if area == nvkv.AreaReserved {
		m.reserveErase = false
	} else {
		m.mainErase = false
	}
}

// EnableErase restores normal erase behavior for area.
func (m *Medium) EnableErase(area nvkv.Area) {
	if area == nvkv.AreaReserved {
		m.reserveErase = true
	} else {
		m.mainErase = true
	}
}

// Corrupt overwrites area's record region (everything after its header)
// with non-erased pseudo-random bytes, simulating torn writes left by an
// interrupted erase.
func (m *Medium) Corrupt(area nvkv.Area) {
	start, end := m.areaBounds(area)
	start += nvkv.Offset(nvkv.MetadataSize)

	seed := uint32(0x2545F491)
	for i := start; i < end; i++ {
		seed = seed*1664525 + 1013904223
		b := byte(seed >> 24)
		if b == 0xFF {
			b = 0x00
		}
		m.buf[i] = b
	}
}

// PokeHeader forces area's 2-byte header to an arbitrary pattern,
// bypassing the normal prepareArea transaction, for constructing a
// specific mid-crash state directly.
func (m *Medium) PokeHeader(area nvkv.Area, started, finished byte) {
	start, _ := m.areaBounds(area)
	m.buf[start] = started
	m.buf[start+1] = finished
}

func (m *Medium) areaBounds(area nvkv.Area) (start, end nvkv.Offset) {
	if area == nvkv.AreaReserved {
		return m.mainEnd(), m.Size()
	}
	return 0, m.mainEnd()
}
