package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cbegin/trackseq-go"
)

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
	if err != nil {
		t.Fatalf("missing default config should be ignored, got %v", err)
	}
	if cfg.SampleRate != 0 || cfg.Volume != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
	if _, err := readConfig(filepath.Join(t.TempDir(), "missing.yaml"), true); err == nil {
		t.Fatal("expected error for a missing explicit config")
	}

	path := filepath.Join(t.TempDir(), "trackseq.yaml")
	data := "sample_rate: 44100\nchannels: 4\nbackend: oto\nvolume: 0.5\nmacros:\n  BEAT: \"125\"\neq: [1, 1, 0.5]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err = readConfig(path, true)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if cfg.SampleRate != 44100 || cfg.Channels != 4 || cfg.Backend != "oto" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Volume == nil || *cfg.Volume != 0.5 {
		t.Fatalf("expected volume 0.5, got %v", cfg.Volume)
	}
	if cfg.Macros["BEAT"] != "125" || len(cfg.EQ) != 3 || cfg.EQ[2] != 0.5 {
		t.Fatalf("unexpected macros/eq %v %v", cfg.Macros, cfg.EQ)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("eq: [1, 1, 1, 1, 1, 1]\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := readConfig(bad, true); err == nil {
		t.Fatal("expected error for too many eq bands")
	}
}

func TestMacroFlags(t *testing.T) {
	m := macroFlags{}
	if err := m.Set("BEAT=125"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := m.Set("EMPTY="); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if m["BEAT"] != "125" || m["EMPTY"] != "" {
		t.Fatalf("unexpected macros %v", m)
	}
	if err := m.Set("novalue"); err == nil {
		t.Fatal("expected error without '='")
	}
}

func TestMixInto(t *testing.T) {
	mix := mixInto(nil, []float32{1, 1}, 0.5)
	mix = mixInto(mix, []float32{1, 1, 1}, 1)
	want := []float32{1.5, 1.5, 1}
	for i := range want {
		if mix[i] != want[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], mix[i])
		}
	}
}

func TestFollowEventsStopsAfterLoops(t *testing.T) {
	events := make(chan trackseq.PlaybackEvent, 4)
	events <- trackseq.PlaybackEvent{Kind: trackseq.EventLoopCompleted, Sequence: 0}
	events <- trackseq.PlaybackEvent{Kind: trackseq.EventLoopCompleted, Sequence: 1}
	events <- trackseq.PlaybackEvent{Kind: trackseq.EventLoopCompleted, Sequence: 0}
	close(events)
	stops := 0
	failed := errors.New("device busy")
	err := followEvents(events, []string{"a", "b"}, 2, func() error {
		stops++
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("expected the stop error, got %v", err)
	}
	if stops != 1 {
		t.Fatalf("expected one stop, got %d", stops)
	}

	events = make(chan trackseq.PlaybackEvent, 2)
	events <- trackseq.PlaybackEvent{Kind: trackseq.EventPlaybackEnded, Sequence: 0}
	events <- trackseq.PlaybackEvent{Kind: trackseq.EventPlaybackEnded, Sequence: -1}
	if err := followEvents(events, []string{"a"}, 0, nil); err != nil {
		t.Fatalf("expected clean end, got %v", err)
	}
}
