package nvkv

import (
	"testing"

	"github.com/openenterprise/nvkv/memnvram"
)

// TestInterruptedMainToReserveTransfer covers testable property 5's third
// crash point: power loss during transferMainToReserve, before
// prepareArea(MAIN) has written anything. Neither header has changed yet
// at this point, so the medium still classifies as CLEAN and main (which
// compaction has not touched yet) remains fully authoritative.
func TestInterruptedMainToReserveTransfer(t *testing.T) {
	m := memnvram.New(512, 256)
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	want := map[Key]Value{1: 10, 2: 20, 3: 30}
	for k, v := range want {
		if err := s.Set(k, v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// Simulate a crash right after backing up the live set: the records
	// land in reserved, and no header has been touched.
	if err := s.transferMainToReserve(); err != nil {
		t.Fatalf("transferMainToReserve: %v", err)
	}

	got, err := classify(m)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != stateClean {
		t.Fatalf("classify = %v, want stateClean", got)
	}

	s2 := New(Options{MaxEntries: 20})
	if mainCap := s2.Init(m); mainCap == 0 {
		t.Fatal("Init refused to start")
	}
	for k, v := range want {
		got, err := s2.Get(k)
		if err != nil || got != v {
			t.Fatalf("Get(%d) = %d, %v, want %d, nil", k, got, err, v)
		}
	}
}

func TestClassifyBlankMedium(t *testing.T) {
	m := memnvram.New(512, 256)
	got, err := classify(m)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != stateBlank {
		t.Fatalf("classify = %v, want stateBlank", got)
	}
}

func TestClassifyCleanMedium(t *testing.T) {
	m := memnvram.New(512, 256)
	s := New(Options{MaxEntries: 20})
	s.Init(m)

	got, err := classify(m)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != stateClean {
		t.Fatalf("classify = %v, want stateClean", got)
	}
}
