package device

import "github.com/viterin/vek/vek32"

// Silence writes zeros into its output buffer.
type Silence struct {
	Output *Buffer
	OutPos int
	stop   StopReason
}

func (s *Silence) Run(n int) int {
	s.stop = 0
	if s.Output == nil {
		s.stop = StopOutput
		return 0
	}
	avail := s.Output.Len() - s.OutPos
	if avail <= 0 || n <= 0 {
		if avail <= 0 {
			s.stop = StopOutput
		}
		return 0
	}
	if n > avail {
		n = avail
	}
	vek32.Zeros_Into(s.Output.Data[s.OutPos:s.OutPos+n], n)
	s.OutPos += n
	return n
}

func (s *Silence) StopReason() StopReason { return s.stop }
