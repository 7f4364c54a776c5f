//go:build tinygo

// Package flashnvram implements nvkv.Medium directly on RP2350 internal
// flash, reusing ota.WriteChunk/ota.EraseSector (the same ROM
// flash_range_program/flash_range_erase calls the OTA updater uses to
// write a firmware partition) instead of going through TinyGo's
// machine.Flash, which assumes a different base offset than the
// partition layout computed by PlanLayout.
package flashnvram

/*
#include <stdint.h>
#define XIP_BASE 0x10000000
static const uint8_t *nvkv_flash_xip_ptr(uint32_t offset) {
    return (const uint8_t *)(XIP_BASE + offset);
}
*/
import "C"

import (
	"unsafe"

	"github.com/openenterprise/nvkv"
	"github.com/openenterprise/nvkv/ota"
)

// SectorSize is the RP2350 erase granularity; every EraseMain/EraseReserve
// call below must round up to a whole number of sectors.
const SectorSize = ota.SectorSize

// Medium implements nvkv.Medium directly on a raw range of RP2350 internal
// flash, split into a main region (the leading sectors) and a reserved
// region (the trailing sectors). base is the raw flash offset (not the
// XIP address) of the first byte of main.
type Medium struct {
	base     uint32
	size     nvkv.Offset
	reserved nvkv.Offset
}

// New returns a Medium covering [base, base+size) of raw flash, with the
// last reserved bytes set aside as the reserved area. Both size and
// reserved must already be sector-aligned; the caller (the composition
// root, which knows the partition layout) is responsible for that.
func New(base uint32, size, reserved nvkv.Offset) *Medium {
	return &Medium{base: base, size: size, reserved: reserved}
}

func (m *Medium) Size() nvkv.Offset     { return m.size }
func (m *Medium) Reserved() nvkv.Offset { return m.reserved }

func (m *Medium) Read(dst []byte, start, length nvkv.Offset) error {
	if start+length > m.size {
		return nvkv.ErrWrongOffset
	}
	ptr := C.nvkv_flash_xip_ptr(C.uint32_t(m.base) + C.uint32_t(start))
	src := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(length))
	copy(dst, src)
	return nil
}

func (m *Medium) Write(src []byte, start, length nvkv.Offset) error {
	if start+length > m.size {
		return nvkv.ErrWrongOffset
	}
	return ota.WriteChunk(m.base+uint32(start), src[:length])
}

func (m *Medium) mainSize() nvkv.Offset { return m.size - m.reserved }

// EraseMain erases every sector belonging to the main region.
func (m *Medium) EraseMain() error {
	return eraseRange(m.base, sectorAlign(m.mainSize()))
}

// EraseReserve erases every sector belonging to the reserved region.
func (m *Medium) EraseReserve() error {
	return eraseRange(m.base+uint32(m.mainSize()), sectorAlign(m.reserved))
}

func eraseRange(base uint32, length nvkv.Offset) error {
	for off := nvkv.Offset(0); off < length; off += SectorSize {
		if err := ota.EraseSector(base + uint32(off)); err != nil {
			return err
		}
	}
	return nil
}
