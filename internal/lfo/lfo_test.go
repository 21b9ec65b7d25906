package lfo

import (
	"math"
	"testing"
)

func TestTriangleShape(t *testing.T) {
	o := New(WaveTriangle, 1.0, 1.0)
	sr := 100.0 // 100 samples per cycle
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = o.Sample(sr)
	}
	cases := []struct {
		idx  int
		want float64
	}{
		{0, -1.0},
		{25, 0},
		{50, 1.0},
	}
	for _, tc := range cases {
		if math.Abs(samples[tc.idx]-tc.want) > 0.05 {
			t.Errorf("triangle at %d: got %f, want %f", tc.idx, samples[tc.idx], tc.want)
		}
	}
}

func TestSquareAndSawShape(t *testing.T) {
	sq := New(WaveSquare, 1.0, 2.0)
	if v := sq.Sample(100); math.Abs(v-2.0) > 0.01 {
		t.Errorf("square first half: got %f, want 2.0", v)
	}
	for i := 1; i < 50; i++ {
		sq.Sample(100)
	}
	if v := sq.Sample(100); math.Abs(v+2.0) > 0.01 {
		t.Errorf("square second half: got %f, want -2.0", v)
	}

	saw := New(WaveSaw, 1.0, 1.0)
	if v := saw.Sample(100); math.Abs(v-1.0) > 0.05 {
		t.Errorf("saw at phase 0: got %f, want 1.0", v)
	}
}

func TestSineQuarterCycle(t *testing.T) {
	o := New(WaveSine, 1.0, 1.0)
	var v float64
	for i := 0; i <= 25; i++ {
		v = o.Sample(100)
	}
	if math.Abs(v-1.0) > 1e-9 {
		t.Errorf("sine at phase 0.25: got %f, want 1.0", v)
	}
}

func TestZeroDepthOrRate(t *testing.T) {
	if v := New(WaveTriangle, 5.0, 0).Sample(44100); v != 0 {
		t.Errorf("zero depth should return 0, got %f", v)
	}
	if v := New(WaveTriangle, 0, 1.0).Sample(44100); v != 0 {
		t.Errorf("zero rate should return 0, got %f", v)
	}
}

func TestRandomIsBoundedAndRepeatable(t *testing.T) {
	a := New(WaveRandom, 10.0, 1.0)
	b := New(WaveRandom, 10.0, 1.0)
	for i := 0; i < 300; i++ {
		va, vb := a.Sample(1000), b.Sample(1000)
		if va != vb {
			t.Fatalf("sample %d: expected identical renders, got %f and %f", i, va, vb)
		}
		if math.Abs(va) > 1.0 {
			t.Fatalf("random sample exceeds depth: %f", va)
		}
	}
}

func TestFillAddsOffset(t *testing.T) {
	o := New(WaveSquare, 1.0, 0.5)
	dst := make([]float32, 100)
	o.Fill(dst, 100, 0.5)
	if dst[0] != 1 || dst[99] != 0 {
		t.Fatalf("expected square between 0 and 1, got %v and %v", dst[0], dst[99])
	}
	o.Reset()
	if v := o.Sample(100); v != 0.5 {
		t.Fatalf("expected reset to phase 0, got %v", v)
	}
}

func TestParseWave(t *testing.T) {
	for _, name := range []string{"saw", "Square", "TRIANGLE", "random", "sine"} {
		w, ok := ParseWave(name)
		if !ok {
			t.Fatalf("expected %q to parse", name)
		}
		if _, ok := ParseWave(w.String()); !ok {
			t.Fatalf("expected %v to round trip", w)
		}
	}
	if _, ok := ParseWave("noise"); ok {
		t.Fatal("expected unknown wave to fail")
	}
}
