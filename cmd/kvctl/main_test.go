package main

import (
	"path/filepath"
	"testing"

	"github.com/openenterprise/nvkv"
	"github.com/openenterprise/nvkv/memnvram"
)

func newTestStore(t *testing.T) (*nvkv.Store, *fileMedium) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nvkv.img")

	m, err := openFileMedium(path, 512, 256)
	if err != nil {
		t.Fatalf("openFileMedium: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	s := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s.Init(m) == 0 {
		t.Fatal("Init refused to start")
	}
	return s, m
}

func TestRunCommandSetGet(t *testing.T) {
	s, _ := newTestStore(t)

	if err := runCommand(s, nil, "set 10 12345"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(10)
	if err != nil || got != 12345 {
		t.Fatalf("Get(10) = %d, %v, want 12345, nil", got, err)
	}
}

func TestRunCommandStatus(t *testing.T) {
	s, _ := newTestStore(t)
	if err := runCommand(s, nil, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
}

func TestRunCommandUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	if err := runCommand(s, nil, "bogus"); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunCommandAgainstSimMedium(t *testing.T) {
	m := memnvram.New(512, 256)
	s := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s.Init(m) == 0 {
		t.Fatal("Init refused to start on sim medium")
	}

	if err := runCommand(s, m, "set 3 42"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := runCommand(s, m, "set 4 43"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(3)
	if err != nil || got != 42 {
		t.Fatalf("Get(3) = %d, %v, want 42, nil", got, err)
	}
	if len(s.Entries()) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(s.Entries()))
	}
}

func TestRunCommandInjectRequiresSim(t *testing.T) {
	s, _ := newTestStore(t)
	if err := runCommand(s, nil, "inject corrupt main"); err == nil {
		t.Fatal("expected inject to fail without -sim")
	}
}

func TestRunCommandInjectCorruptReservedSurvivesReinit(t *testing.T) {
	m := memnvram.New(512, 256)
	s := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s.Init(m) == 0 {
		t.Fatal("Init refused to start on sim medium")
	}
	if err := s.Set(1, 100); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := runCommand(s, m, "inject corrupt reserved"); err != nil {
		t.Fatalf("inject corrupt: %v", err)
	}

	// A fresh Store over the same (now-corrupted-reserved) medium must
	// still boot and still see the value written before corruption: the
	// reserved area holds no live data outside of a compaction window.
	s2 := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s2.Init(m) == 0 {
		t.Fatal("re-Init refused to start after reserved-area corruption")
	}
	got, err := s2.Get(1)
	if err != nil || got != 100 {
		t.Fatalf("Get(1) after corrupt+reinit = %d, %v, want 100, nil", got, err)
	}
}

func TestRunCommandInjectUnknownSubcommand(t *testing.T) {
	m := memnvram.New(512, 256)
	s := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s.Init(m) == 0 {
		t.Fatal("Init refused to start on sim medium")
	}
	if err := runCommand(s, m, "inject bogus main"); err == nil {
		t.Fatal("expected error for unknown inject sub-command")
	}
}

func TestFileMediumPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvkv.img")

	m1, err := openFileMedium(path, 512, 256)
	if err != nil {
		t.Fatalf("openFileMedium: %v", err)
	}
	s1 := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s1.Init(m1) == 0 {
		t.Fatal("Init refused to start")
	}
	if err := s1.Set(7, 777); err != nil {
		t.Fatalf("Set: %v", err)
	}
	m1.Close()

	m2, err := openFileMedium(path, 512, 256)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	s2 := nvkv.New(nvkv.Options{MaxEntries: 20})
	if s2.Init(m2) == 0 {
		t.Fatal("Init refused to start on reopened image")
	}
	got, err := s2.Get(7)
	if err != nil || got != 777 {
		t.Fatalf("Get(7) after reopen = %d, %v, want 777, nil", got, err)
	}
}
