package audio

import (
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

type ebitenOutput struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	ebitenContextOnce sync.Once
	ebitenContext     *ebitaudio.Context
	ebitenSampleRate  int
)

func sharedEbitenContext(sampleRate int) (*ebitaudio.Context, error) {
	ebitenContextOnce.Do(func() {
		ebitenSampleRate = sampleRate
		ebitenContext = ebitaudio.NewContext(sampleRate)
	})
	if ebitenSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", ebitenSampleRate, sampleRate)
	}
	return ebitenContext, nil
}

func newEbitenOutput(sampleRate, channels int, source SampleSource) (*ebitenOutput, error) {
	if channels != 2 {
		return nil, fmt.Errorf("ebiten backend is stereo only (requested %d channels)", channels)
	}
	ctx, err := sharedEbitenContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, channels)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &ebitenOutput{player: pl, reader: reader}, nil
}

func (o *ebitenOutput) Play()                   { o.player.Play() }
func (o *ebitenOutput) Pause()                  { o.player.Pause() }
func (o *ebitenOutput) IsPlaying() bool         { return o.player.IsPlaying() }
func (o *ebitenOutput) Position() time.Duration { return o.player.Position() }

func (o *ebitenOutput) Stop() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
