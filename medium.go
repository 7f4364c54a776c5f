// Package nvkv implements a wear-leveling key/value store for small
// embedded devices whose only persistent medium is byte-erasable NVRAM
// (flash or EEPROM) with a finite erase-cycle budget and no guarantee
// against power loss between any two driver calls.
//
// Writes are appended into a main area; when main fills, the live set is
// copied to a reserved area, main is erased, and the live set is copied
// back. A 2-byte metadata header at the start of each area records how
// far a compaction got, so a cold boot can classify the medium and finish
// whatever step a power loss interrupted.
package nvkv

import "errors"

// Key identifies a stored value. Any value in its range is legal.
type Key uint16

// Value is the signed payload associated with a Key.
type Value int32

// Offset addresses a byte position on the medium.
type Offset uint32

// Area names one of the two regions the medium is partitioned into.
type Area int

const (
	// AreaMain is the larger, primary log region.
	AreaMain Area = iota
	// AreaReserved is the smaller staging region used during compaction.
	AreaReserved
)

func (a Area) String() string {
	if a == AreaReserved {
		return "reserved"
	}
	return "main"
}

const (
	// erasedByte is the medium's natural post-erase state.
	erasedByte = 0xFF
	// eraseStarted marks that an erase/restore cycle began.
	eraseStarted = 0xE2
	// eraseFinished marks that an erase/restore cycle completed.
	eraseFinished = 0x3E

	keySize   = 2 // sizeof(Key)
	valueSize = 4 // sizeof(Value)

	// EntrySize is the fixed width of one on-medium record.
	EntrySize = keySize + valueSize

	// MetadataSize is the width of the header at the start of each area.
	MetadataSize = 2

	// MinAreaSize is the smallest area that can hold a header and one record.
	MinAreaSize = EntrySize + MetadataSize
)

// Medium is the NVRAM driver contract the host supplies. Reads are
// random-access; writes are only valid onto a range that reads back as
// fully erased; erase is coarse and unconditionally covers the named
// area's entire byte range ([0, size-reserved) for main,
// [size-reserved, size) for reserved).
type Medium interface {
	// Read copies length bytes starting at start into dst.
	Read(dst []byte, start, length Offset) error
	// Write stores src (len(src) == length) at start. The destination
	// must already read back as fully erased; a driver may reject
	// writes onto a non-erased range.
	Write(src []byte, start, length Offset) error
	// EraseMain erases [0, Size()-Reserved()).
	EraseMain() error
	// EraseReserve erases [Size()-Reserved(), Size()).
	EraseReserve() error
	// Size returns the total byte count of the medium.
	Size() Offset
	// Reserved returns the byte count of the reserved area.
	Reserved() Offset
}

// Sentinel errors returned by Store operations.
var (
	ErrNotExist      = errors.New("nvkv: key does not exist")
	ErrNotStarted    = errors.New("nvkv: store not initialized")
	ErrNoSpace       = errors.New("nvkv: directory full")
	ErrWrongOffset   = errors.New("nvkv: offset out of bounds")
	ErrReservedEntry = errors.New("nvkv: key/value pair is reserved (all-0xFF sentinel)")
)
