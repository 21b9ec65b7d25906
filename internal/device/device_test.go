package device

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func ramp(n int) *Buffer {
	b := NewBuffer(n, 1000)
	for i := range b.Data {
		b.Data[i] = float32(i)
	}
	return b
}

func TestBufferPosition(t *testing.T) {
	b := NewBuffer(48000, 48000)
	cases := []struct {
		ms   float64
		want int
	}{
		{0, 0},
		{10, 480},
		{-10, 47520},
		{-2000, 0},
		{5000, 48000},
	}
	for _, tc := range cases {
		if got := b.Position(tc.ms); got != tc.want {
			t.Fatalf("Position(%v): expected %d, got %d", tc.ms, tc.want, got)
		}
	}
	if got := SilenceBuffer(250, 8000).Len(); got != 2000 {
		t.Fatalf("expected 2000 samples of silence, got %d", got)
	}
}

func TestStopReasonString(t *testing.T) {
	if got := (StopOutput | StopVolume).String(); got != "output|volume" {
		t.Fatalf("expected output|volume, got %q", got)
	}
	if got := StopReason(0).String(); got != "none" {
		t.Fatalf("expected none, got %q", got)
	}
	if got := StopRequest.String(); got != "request" {
		t.Fatalf("expected request, got %q", got)
	}
}

func TestSilenceOverwritesUntilFull(t *testing.T) {
	out := NewBuffer(10, 1000)
	for i := range out.Data {
		out.Data[i] = 1
	}
	s := &Silence{Output: out, OutPos: 4}
	if got := s.Run(100); got != 6 {
		t.Fatalf("expected 6 samples, got %d", got)
	}
	for i := 4; i < 10; i++ {
		if out.Data[i] != 0 {
			t.Fatalf("sample %d not silenced", i)
		}
	}
	if out.Data[3] != 1 {
		t.Fatalf("sample before the cursor was touched")
	}
	if got := s.Run(1); got != 0 || s.StopReason() != StopOutput {
		t.Fatalf("expected zero progress with StopOutput, got %d %v", got, s.StopReason())
	}
	var unbound Silence
	if unbound.Run(5) != 0 || unbound.StopReason() != StopOutput {
		t.Fatalf("unbound silence should stop on output")
	}
}

func TestPlayerOnceStopsAtInputEnd(t *testing.T) {
	p := NewPlayer()
	p.Input = ramp(4)
	p.Output = NewBuffer(10, 1000)
	if got := p.Run(10); got != 4 {
		t.Fatalf("expected 4 samples, got %d", got)
	}
	if p.StopReason() != StopInput {
		t.Fatalf("expected StopInput, got %v", p.StopReason())
	}
	for i := 0; i < 4; i++ {
		if p.Output.Data[i] != float32(i) {
			t.Fatalf("sample %d: expected %d, got %v", i, i, p.Output.Data[i])
		}
	}
}

func TestPlayerStopsOnNonFiniteSpeed(t *testing.T) {
	for _, speed := range []float64{math.NaN(), math.Inf(1)} {
		for _, mode := range []Mode{ModeOnce, ModeLoop} {
			p := NewPlayer()
			p.Input = ramp(4)
			p.Output = NewBuffer(10, 1000)
			p.Mode = mode
			p.LoopLength = 4
			p.Speed = speed
			if got := p.Run(10); got != 1 {
				t.Fatalf("speed %v mode %v: expected 1 sample, got %d", speed, mode, got)
			}
			if p.StopReason() != StopInput {
				t.Fatalf("speed %v mode %v: expected StopInput, got %v", speed, mode, p.StopReason())
			}
		}
	}
}

func TestPlayerMixesAndInterpolates(t *testing.T) {
	p := NewPlayer()
	p.Input = ramp(8)
	p.Output = NewBuffer(4, 1000)
	p.Output.Data[0] = 10
	p.Speed = 0.5
	p.Volume = 2
	p.Run(4)
	want := []float32{10, 1, 2, 3}
	for i, w := range want {
		if math.Abs(float64(p.Output.Data[i]-w)) > 1e-6 {
			t.Fatalf("sample %d: expected %v, got %v", i, w, p.Output.Data[i])
		}
	}
	if p.StopReason() != 0 {
		t.Fatalf("expected no stop reason, got %v", p.StopReason())
	}
}

func TestPlayerLoopWraps(t *testing.T) {
	p := NewPlayer()
	p.Input = ramp(8)
	p.Output = NewBuffer(8, 1000)
	p.Mode = ModeLoop
	p.LoopStart = 2
	p.LoopLength = 3
	p.InPos = 2
	if got := p.Run(8); got != 8 {
		t.Fatalf("expected a full run, got %d", got)
	}
	want := []float32{2, 3, 4, 2, 3, 4, 2, 3}
	for i, w := range want {
		if p.Output.Data[i] != w {
			t.Fatalf("sample %d: expected %v, got %v", i, w, p.Output.Data[i])
		}
	}
	if p.StopReason() != StopOutput && p.StopReason() != 0 {
		t.Fatalf("unexpected stop reason %v", p.StopReason())
	}
}

func TestPlayerSourceExhaustionDoesNotConsume(t *testing.T) {
	p := NewPlayer()
	p.Input = ramp(16)
	p.Output = NewBuffer(16, 1000)
	vol := NewBuffer(3, 1000)
	for i := range vol.Data {
		vol.Data[i] = 1
	}
	p.VolumeSource.Bind(vol)
	if got := p.Run(10); got != 3 {
		t.Fatalf("expected 3 samples, got %d", got)
	}
	if p.StopReason() != StopVolume {
		t.Fatalf("expected StopVolume, got %v", p.StopReason())
	}
	if p.OutPos != 3 || p.InPos != 3 {
		t.Fatalf("expected cursors at 3, got out=%d in=%v", p.OutPos, p.InPos)
	}
	speed := NewBuffer(1, 1000)
	speed.Data[0] = 1
	p.SpeedSource.Bind(speed)
	p.VolumeSource.Bind(vol)
	if got := p.Run(10); got != 1 || p.StopReason() != StopSpeed {
		t.Fatalf("expected 1 sample then StopSpeed, got %d %v", got, p.StopReason())
	}
	if p.VolumeSource.Pos != 1 {
		t.Fatalf("volume source consumed past the stop, pos=%d", p.VolumeSource.Pos)
	}
}

func TestPlayerPhaseMode(t *testing.T) {
	p := NewPlayer()
	p.Input = ramp(10)
	p.Output = NewBuffer(3, 1000)
	p.Mode = ModePhase
	if got := p.Run(1); got != 0 || p.StopReason() != StopPhase {
		t.Fatalf("expected StopPhase without a phase source, got %d %v", got, p.StopReason())
	}
	phase := NewBuffer(3, 1000)
	phase.Data = []float32{0.5, 0.2, 0.9}
	p.PhaseSource.Bind(phase)
	p.Run(3)
	want := []float32{5, 2, 9}
	for i, w := range want {
		if math.Abs(float64(p.Output.Data[i]-w)) > 1e-4 {
			t.Fatalf("sample %d: expected %v, got %v", i, w, p.Output.Data[i])
		}
	}
}

func TestNoteRatio(t *testing.T) {
	cases := []struct {
		note int
		want float64
	}{
		{60, 1},
		{72, 2},
		{48, 0.5},
		{69, 1.6817928},
	}
	for _, tc := range cases {
		if got := NoteRatio(tc.note); math.Abs(got-tc.want) > 1e-5 {
			t.Fatalf("note %d: expected %v, got %v", tc.note, tc.want, got)
		}
	}
	if m, ok := ParseMode("loop"); !ok || m != ModeLoop || m.String() != "loop" {
		t.Fatalf("expected loop mode, got %v %v", m, ok)
	}
	if _, ok := ParseMode("bounce"); ok {
		t.Fatalf("expected unknown mode to be rejected")
	}
}

func TestFilterImpulseAndKernel(t *testing.T) {
	f := NewFilter()
	f.Input = ramp(5)
	f.Output = NewBuffer(6, 1000)
	if got := f.Run(5); got != 5 {
		t.Fatalf("expected 5 samples, got %d", got)
	}
	for i := 0; i < 5; i++ {
		if f.Output.Data[i] != float32(i) {
			t.Fatalf("unit kernel should pass input through, sample %d = %v", i, f.Output.Data[i])
		}
	}
	if got := f.Run(1); got != 0 || f.StopReason() != StopInput {
		t.Fatalf("expected StopInput, got %d %v", got, f.StopReason())
	}

	// Two slices: [1 1] sums the last two inputs, [0 2] doubles the newest.
	f = NewFilter()
	f.Input = ramp(4)
	f.Output = NewBuffer(4, 1000)
	f.Kernel = &Buffer{Data: []float32{9, 1, 1, 0, 2}, Rate: 1000}
	f.KernelStart = 1
	f.Slices = 2
	f.Run(4)
	want := []float32{0, 1, 3, 5}
	for i, w := range want {
		if f.Output.Data[i] != w {
			t.Fatalf("slice 0, sample %d: expected %v, got %v", i, w, f.Output.Data[i])
		}
	}
	f.Output = NewBuffer(4, 1000)
	f.InPos, f.OutPos = 0, 0
	sel := &Buffer{Data: []float32{0.9, 0.9}, Rate: 1000}
	f.SliceSource.Bind(sel)
	if got := f.Run(4); got != 2 || f.StopReason() != StopSlice {
		t.Fatalf("expected 2 samples then StopSlice, got %d %v", got, f.StopReason())
	}
	if f.Output.Data[0] != 0 || f.Output.Data[1] != 2 {
		t.Fatalf("slice 1 should double input, got %v", f.Output.Data[:2])
	}
}

func TestWindowPrepareAndInterleave(t *testing.T) {
	w := NewWindow(1000, 2)
	out := w.Output(1)
	w.Prepare(3)
	if w.Output(1) != out || out.Len() != 3 {
		t.Fatalf("expected stable buffer of 3 samples, got len %d", out.Len())
	}
	w.Output(0).Data[2] = 1
	out.Data[0] = 0.5
	dst := make([]float32, 6)
	w.Interleave(dst, 2)
	want := []float32{0, 1, 0, 0, 2, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], dst[i])
		}
	}
	w.Prepare(2)
	if w.Output(0).Data[0] != 0 || w.Output(1).Data[0] != 0 {
		t.Fatalf("prepare should clear the window")
	}
}

func TestDecodeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	enc := wav.NewEncoder(f, 22050, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 22050},
		Data:           []int{16384, -16384, 0, 8192, -32768, 0},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder failed: %v", err)
	}
	f.Close()

	in, err := os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer in.Close()
	b, err := DecodeWAV(in, 1)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if b.Rate != 22050 || b.Len() != 3 {
		t.Fatalf("expected 3 samples at 22050, got %d at %d", b.Len(), b.Rate)
	}
	want := []float32{-0.5, 0.25, 0}
	for i := range want {
		if b.Data[i] != want[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], b.Data[i])
		}
	}
	if _, err := in.Seek(0, 0); err != nil {
		t.Fatalf("seek failed: %v", err)
	}
	if _, err := DecodeWAV(in, 2); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected channel range error, got %v", err)
	}
	if _, err := DecodeWAV(strings.NewReader("not a wav file at all"), 0); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}
