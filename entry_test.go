package nvkv

import (
	"testing"

	"github.com/openenterprise/nvkv/memnvram"
)

func TestIsBlockErased(t *testing.T) {
	erased := make([]byte, EntrySize)
	for i := range erased {
		erased[i] = 0xFF
	}
	if !isBlockErased(erased) {
		t.Fatal("expected erased block to read as erased")
	}

	notErased := append([]byte{}, erased...)
	notErased[3] = 0x01
	if isBlockErased(notErased) {
		t.Fatal("expected non-erased block to read as not erased")
	}
}

func TestReadWriteEntryRoundTrip(t *testing.T) {
	m := memnvram.New(64, 32)

	if err := writeEntry(m, MetadataSize, 42, -7); err != nil {
		t.Fatalf("writeEntry: %v", err)
	}

	key, value, err := readEntry(m, MetadataSize)
	if err != nil {
		t.Fatalf("readEntry: %v", err)
	}
	if key != 42 || value != -7 {
		t.Fatalf("got (%d, %d), want (42, -7)", key, value)
	}
}

func TestReadEntryNotExist(t *testing.T) {
	m := memnvram.New(64, 32)

	_, _, err := readEntry(m, MetadataSize)
	if err != ErrNotExist {
		t.Fatalf("got %v, want ErrNotExist", err)
	}
}

func TestReadEntryWrongOffset(t *testing.T) {
	m := memnvram.New(64, 32)

	_, _, err := readEntry(m, 60)
	if err != ErrWrongOffset {
		t.Fatalf("got %v, want ErrWrongOffset", err)
	}
}

func TestIsReservedEntry(t *testing.T) {
	if !isReservedEntry(0xFFFF, -1) {
		t.Fatal("expected (0xFFFF, -1) to be flagged reserved")
	}
	if isReservedEntry(0xFFFF, 0) {
		t.Fatal("did not expect (0xFFFF, 0) to be flagged reserved")
	}
	if isReservedEntry(0, -1) {
		t.Fatal("did not expect (0, -1) to be flagged reserved")
	}
}
