package device

import "github.com/viterin/vek/vek32"

// Filter correlates one slice of a kernel buffer against the trailing window
// of its input and mixes the result into its output. The kernel region from
// KernelStart to the end of Kernel is split into Slices equal slices; Slice
// picks one, or SliceSource picks one per sample (0..1 across all slices).
// Input samples before position 0 read as zero.
type Filter struct {
	Input  *Buffer
	Output *Buffer
	InPos  int
	OutPos int

	Volume       float32
	VolumeSource Source
	Kernel       *Buffer
	KernelStart  int
	Slices       int
	Slice        int
	SliceSource  Source

	window []float32
	stop   StopReason
}

func NewFilter() *Filter {
	return &Filter{Volume: 1, Slices: 1}
}

func (f *Filter) StopReason() StopReason { return f.stop }

// kernel returns the slice selected by idx, or a unit impulse when no kernel
// is bound.
func (f *Filter) kernel(idx int) []float32 {
	if f.Kernel == nil {
		return unitKernel
	}
	data := f.Kernel.Data
	start := f.KernelStart
	if start < 0 {
		start = 0
	}
	if start > len(data) {
		start = len(data)
	}
	slices := f.Slices
	if slices < 1 {
		slices = 1
	}
	size := (len(data) - start) / slices
	if size == 0 {
		return unitKernel
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= slices {
		idx = slices - 1
	}
	off := start + idx*size
	return data[off : off+size]
}

var unitKernel = []float32{1}

func (f *Filter) Run(n int) int {
	f.stop = 0
	if f.Output == nil {
		f.stop = StopOutput
		return 0
	}
	if f.Input == nil {
		f.stop = StopInput
		return 0
	}
	in := f.Input.Data
	out := f.Output.Data
	done := 0
	for ; done < n; done++ {
		if f.OutPos >= len(out) {
			f.stop |= StopOutput
			break
		}
		if f.InPos >= len(in) {
			f.stop |= StopInput
			break
		}
		vol := f.Volume
		if f.VolumeSource.Bound() {
			v, ok := f.VolumeSource.peek()
			if !ok {
				f.stop |= StopVolume
				break
			}
			vol *= v
		}
		slice := f.Slice
		if f.SliceSource.Bound() {
			v, ok := f.SliceSource.peek()
			if !ok {
				f.stop |= StopSlice
				break
			}
			slices := f.Slices
			if slices < 1 {
				slices = 1
			}
			slice = int(v * float32(slices))
		}
		k := f.kernel(slice)
		out[f.OutPos] += vek32.Dot(k, f.trailing(in, len(k))) * vol

		f.VolumeSource.advance()
		f.SliceSource.advance()
		f.OutPos++
		f.InPos++
	}
	return done
}

// trailing returns the size input samples ending at InPos, oldest first.
func (f *Filter) trailing(in []float32, size int) []float32 {
	first := f.InPos - size + 1
	if first >= 0 {
		return in[first : f.InPos+1]
	}
	if cap(f.window) < size {
		f.window = make([]float32, size)
	}
	w := f.window[:size]
	pad := -first
	vek32.Zeros_Into(w[:pad], pad)
	copy(w[pad:], in[:f.InPos+1])
	return w
}
