package nvkv

import (
	"testing"

	"github.com/openenterprise/nvkv/memnvram"
)

// Scenario geometry shared by every test below: 512-byte medium, 256-byte
// reserved area, ENTRY_SIZE=6, MaxEntries=20. Main is size-reserved = 256
// bytes; its 2-byte header is subtracted before dividing by the entry
// size, so main capacity = (512-256-2)/6 = 42 records.

func newScenarioMedium() *memnvram.Medium {
	return memnvram.New(512, 256)
}

func TestScenarioAInitOnBlankMedium(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})

	got := s.Init(m)
	want := int((256 - MetadataSize) / EntrySize) // (256-2)/6 = 42
	if got != want {
		t.Fatalf("Init = %d, want %d", got, want)
	}
	if s.UsedEntries() != 0 {
		t.Fatalf("UsedEntries = %d, want 0", s.UsedEntries())
	}
	if s.FreeEntries() != 20 {
		t.Fatalf("FreeEntries = %d, want 20", s.FreeEntries())
	}
}

func TestScenarioBSimpleSetGet(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	if err := s.Set(10, 1000); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(10, 2000); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := s.Get(10)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 2000 {
		t.Fatalf("Get = %d, want 2000", got)
	}
}

func TestScenarioCFillToCapacity(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	for k := Key(0); k < 20; k++ {
		if err := s.Set(k, Value(10000+int32(k))); err != nil {
			t.Fatalf("Set(%d): %v", k, err)
		}
	}

	if s.FreeEntries() != 0 {
		t.Fatalf("FreeEntries = %d, want 0", s.FreeEntries())
	}

	if err := s.Set(20, 0); err != ErrNoSpace {
		t.Fatalf("Set(20, 0) = %v, want ErrNoSpace", err)
	}

	// Updating an existing key still succeeds once full.
	if err := s.Set(1, 999); err != nil {
		t.Fatalf("Set(1, 999) = %v, want nil", err)
	}
	got, err := s.Get(1)
	if err != nil || got != 999 {
		t.Fatalf("Get(1) = %d, %v, want 999, nil", got, err)
	}
}

func TestScenarioDWrapAround(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	mainCapacity := s.Init(m)

	latest := make(map[Key]Value)
	// 2x + a few extra main-capacity's worth of writes guarantees at
	// least one real compaction fires (testable property 4: wrap
	// survival "for any N >= 1").
	iterations := 2*mainCapacity + 7
	for i := 0; i < iterations; i++ {
		k := Key(i % 20)
		v := Value(i)
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set(%d, %d) at i=%d: %v", k, v, i, err)
		}
		latest[k] = v
	}

	for k := Key(0); k < 20; k++ {
		got, err := s.Get(k)
		if err != nil {
			t.Fatalf("Get(%d): %v", k, err)
		}
		if got != latest[k] {
			t.Fatalf("Get(%d) = %d, want %d", k, got, latest[k])
		}
	}
}

func TestScenarioEInterruptedMainErase(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	latest := map[Key]Value{1: 111, 2: 222, 3: 333, 4: 444}
	for k, v := range latest {
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// Drive compaction's first half by hand, as restartMap would, then
	// stop before prepareArea(MAIN) finishes: reserved now holds the
	// pre-erase backup (transferMainToReserve already ran), main is
	// about to be erased but power is lost mid-erase (simulated by
	// corrupting it instead of actually erasing), and reserved's header
	// (which records main's erase progress) reads "started, not
	// finished".
	if err := s.transferMainToReserve(); err != nil {
		t.Fatalf("transferMainToReserve: %v", err)
	}
	m.Corrupt(AreaMain)
	m.PokeHeader(AreaReserved, 0xE2, 0xFF)

	s2 := New(Options{MaxEntries: 20})
	if got := s2.Init(m); got == 0 {
		t.Fatal("Init refused to start after interrupted main erase")
	}

	for k, v := range latest {
		got, err := s2.Get(k)
		if err != nil {
			t.Fatalf("Get(%d) after recovery: %v", k, err)
		}
		if got != v {
			t.Fatalf("Get(%d) = %d, want %d", k, got, v)
		}
	}
}

func TestScenarioFInterruptedReserveErase(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	mainCapacity := s.Init(m)

	latest := make(map[Key]Value)
	for i := 0; i < mainCapacity+5; i++ {
		k := Key(i % 20)
		v := Value(i)
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set: %v", err)
		}
		latest[k] = v
	}

	// Simulate: reserved was mid-erase (the final step of compaction)
	// when power was lost. Main already holds the fully restored,
	// authoritative live set; reserved is garbage and main's header
	// (which records reserved's erase progress) reads "started".
	m.Corrupt(AreaReserved)
	m.PokeHeader(AreaMain, 0xE2, 0xFF)

	s2 := New(Options{MaxEntries: 20})
	if got := s2.Init(m); got == 0 {
		t.Fatal("Init refused to start after interrupted reserve erase")
	}

	for k, v := range latest {
		got, err := s2.Get(k)
		if err != nil {
			t.Fatalf("Get(%d) after recovery: %v", k, err)
		}
		if got != v {
			t.Fatalf("Get(%d) = %d, want %d", k, got, v)
		}
	}

	// Reserved must have been re-erased as part of recovery.
	var buf [MetadataSize]byte
	if err := m.Read(buf[:], m.Size()-m.Reserved(), MetadataSize); err != nil {
		t.Fatalf("read reserved header: %v", err)
	}
	if buf[0] != 0xFF || buf[1] != 0xFF {
		t.Fatalf("reserved header = %v, want fully erased", buf)
	}
}

func TestPersistenceAcrossReboot(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	want := map[Key]Value{1: 111, 2: 222, 3: 333}
	for k, v := range want {
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	s2 := New(Options{MaxEntries: 20})
	s2.Init(m)

	for k, v := range want {
		got, err := s2.Get(k)
		if err != nil || got != v {
			t.Fatalf("Get(%d) after reboot = %d, %v, want %d, nil", k, got, err, v)
		}
	}
}

func TestCapacityAccounting(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	for k := Key(0); k < 20; k++ {
		s.Set(k, Value(k))
	}
	if s.UsedEntries()+s.FreeEntries() != 20 {
		t.Fatalf("used+free = %d, want 20", s.UsedEntries()+s.FreeEntries())
	}
	if err := s.Set(20, 1); err != ErrNoSpace {
		t.Fatalf("21st key = %v, want ErrNoSpace", err)
	}
}

func TestInitBoundsRejection(t *testing.T) {
	cases := []struct {
		name       string
		size, resv int
	}{
		{"reserved >= size", 100, 100},
		{"main capacity too small", 130, 126}, // main=4B -> 0 records <= MaxEntries
		{"reserved capacity too small", 512, 8},
		{"main smaller than reserved", 512, 400},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := memnvram.New(Offset(tc.size), Offset(tc.resv))
			s := New(Options{MaxEntries: 20})
			if got := s.Init(m); got != 0 {
				t.Fatalf("Init = %d, want 0", got)
			}
		})
	}
}

func TestGetSetBeforeInitNotStarted(t *testing.T) {
	s := New(Options{MaxEntries: 20})

	if _, err := s.Get(1); err != ErrNotStarted {
		t.Fatalf("Get before Init = %v, want ErrNotStarted", err)
	}
	if err := s.Set(1, 1); err != ErrNotStarted {
		t.Fatalf("Set before Init = %v, want ErrNotStarted", err)
	}
}

func TestSetRejectsReservedSentinel(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	if err := s.Set(0xFFFF, -1); err != ErrReservedEntry {
		t.Fatalf("Set(0xFFFF, -1) = %v, want ErrReservedEntry", err)
	}
}

func TestEntriesInsertionOrder(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	order := []Key{5, 1, 9}
	for _, k := range order {
		if err := s.Set(k, Value(k)*10); err != nil {
			t.Fatalf("Set(%d): %v", k, err)
		}
	}
	// Re-setting an existing key must not move its position.
	if err := s.Set(1, 999); err != nil {
		t.Fatalf("Set(1, 999): %v", err)
	}

	entries := s.Entries()
	if len(entries) != len(order) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(order))
	}
	for i, k := range order {
		if entries[i].Key != k {
			t.Fatalf("entries[%d].Key = %d, want %d", i, entries[i].Key, k)
		}
	}
	if entries[1].Value != 999 {
		t.Fatalf("entries[1].Value = %d, want 999", entries[1].Value)
	}
}

func TestWearLevelingFactor(t *testing.T) {
	m := newScenarioMedium()
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	mainCapacity := (512 - 256 - MetadataSize) / EntrySize
	want := float64(mainCapacity) / 20
	if got := s.WearLevelingFactor(); got != want {
		t.Fatalf("WearLevelingFactor = %v, want %v", got, want)
	}
}
