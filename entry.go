package nvkv

import (
	"encoding/binary"
	"fmt"
)

// isBlockErased reports whether every byte in data equals erasedByte.
func isBlockErased(data []byte) bool {
	for _, b := range data {
		if b != erasedByte {
			return false
		}
	}
	return true
}

// readEntry reads the EntrySize-byte record at offset and decodes it.
// It returns ErrNotExist if the slot reads back fully erased, or
// ErrWrongOffset if the record would run past the medium's end.
func readEntry(m Medium, offset Offset) (Key, Value, error) {
	if offset+EntrySize > m.Size() {
		return 0, 0, ErrWrongOffset
	}

	var block [EntrySize]byte
	if err := m.Read(block[:], offset, EntrySize); err != nil {
		return 0, 0, fmt.Errorf("nvkv: medium: %w", err)
	}

	if isBlockErased(block[:]) {
		return 0, 0, ErrNotExist
	}

	key := Key(binary.LittleEndian.Uint16(block[0:keySize]))
	value := Value(binary.LittleEndian.Uint32(block[keySize:EntrySize]))
	return key, value, nil
}

// writeEntry encodes (key, value) and writes it to offset, which must
// already read back as fully erased.
func writeEntry(m Medium, offset Offset, key Key, value Value) error {
	if offset+EntrySize > m.Size() {
		return ErrWrongOffset
	}

	var block [EntrySize]byte
	binary.LittleEndian.PutUint16(block[0:keySize], uint16(key))
	binary.LittleEndian.PutUint32(block[keySize:EntrySize], uint32(value))

	if err := m.Write(block[:], offset, EntrySize); err != nil {
		return fmt.Errorf("nvkv: medium: %w", err)
	}
	return nil
}

// isReservedEntry reports whether (key, value) encodes to all-0xFF,
// which would be indistinguishable from an erased slot.
func isReservedEntry(key Key, value Value) bool {
	return key == 0xFFFF && value == -1
}
