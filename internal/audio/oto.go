package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoBufferSize is the device buffer oto is asked for.
const otoBufferSize = 40 * time.Millisecond

type otoOutput struct {
	player *oto.Player
	reader *StreamReader
	rate   int
}

var (
	otoContextOnce sync.Once
	otoContext     *oto.Context
	otoContextErr  error
	otoSampleRate  int
	otoChannels    int
)

func sharedOtoContext(sampleRate, channels int) (*oto.Context, error) {
	otoContextOnce.Do(func() {
		otoSampleRate, otoChannels = sampleRate, channels
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   otoBufferSize,
		})
		if err != nil {
			otoContextErr = fmt.Errorf("cannot create oto context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}
	if otoSampleRate != sampleRate || otoChannels != channels {
		return nil, fmt.Errorf("oto context already initialized at %d Hz x%d (requested %d Hz x%d)",
			otoSampleRate, otoChannels, sampleRate, channels)
	}
	return otoContext, nil
}

func newOtoOutput(sampleRate, channels int, source SampleSource) (*otoOutput, error) {
	ctx, err := sharedOtoContext(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, channels)
	return &otoOutput{player: ctx.NewPlayer(reader), reader: reader, rate: sampleRate}, nil
}

func (o *otoOutput) Play()           { o.player.Play() }
func (o *otoOutput) Pause()          { o.player.Pause() }
func (o *otoOutput) IsPlaying() bool { return o.player.IsPlaying() }

// Position subtracts what oto still holds from what it has pulled.
func (o *otoOutput) Position() time.Duration {
	played := o.reader.Frames() - int64(o.player.BufferedSize()/o.reader.FrameSize())
	if played < 0 {
		played = 0
	}
	return time.Duration(played) * time.Second / time.Duration(o.rate)
}

func (o *otoOutput) Stop() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return o.reader.Close()
}
