package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/cbegin/trackseq-go"
)

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath, "YAML config file")
		sampleRate = flag.Int("sample-rate", trackseq.DefaultSampleRate, "output sample rate")
		channels   = flag.Int("channels", trackseq.DefaultChannels, "output channels")
		backend    = flag.String("backend", string(trackseq.BackendEbiten), "audio backend: ebiten|oto")
		loop       = flag.Bool("loop", false, "loop playback; use with -loops to count then stop")
		loops      = flag.Int("loops", 3, "when -loop, stop after N loops of the first sequence (0 = loop forever)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		stall      = flag.Int("stall", 0, "zero-progress iterations before a channel idles (0 = default)")
		render     = flag.String("render", "", "render to this WAV file instead of playing")
		seconds    = flag.Float64("seconds", 60, "maximum length when rendering")
		verbose    = flag.Bool("v", false, "log sequencer diagnostics to stderr")
		macros     = macroFlags{}
	)
	flag.Var(macros, "D", "define a macro NAME=VALUE (repeatable)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] sequence.seq...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cfg, err := readConfig(*configPath, set["config"])
	if err != nil {
		log.Fatal(err)
	}
	if cfg.SampleRate > 0 && !set["sample-rate"] {
		*sampleRate = cfg.SampleRate
	}
	if cfg.Channels > 0 && !set["channels"] {
		*channels = cfg.Channels
	}
	if cfg.Backend != "" && !set["backend"] {
		*backend = cfg.Backend
	}
	if cfg.Volume != nil && !set["volume"] {
		*volume = *cfg.Volume
	}
	if cfg.StallThreshold > 0 && !set["stall"] {
		*stall = cfg.StallThreshold
	}
	for k, v := range cfg.Macros {
		if _, ok := macros[k]; !ok {
			macros[k] = v
		}
	}

	logger := slog.New(slog.DiscardHandler)
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	opts := []trackseq.LoadOption{
		trackseq.WithOutput(*sampleRate, *channels),
		trackseq.WithStallThreshold(*stall),
		trackseq.WithLogger(logger),
	}
	for k, v := range macros {
		opts = append(opts, trackseq.WithMacro(k, v))
	}
	seqs, err := loadAll(flag.Args(), opts)
	if err != nil {
		log.Fatal(err)
	}
	for _, s := range seqs {
		if title, ok := s.Tag("title"); ok {
			fmt.Printf("%s: %s\n", s.Name(), title)
		}
	}

	if *render != "" {
		if err := renderAll(*render, seqs, *seconds, *volume); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", *render)
		return
	}

	be, err := parseBackend(*backend)
	if err != nil {
		log.Fatal(err)
	}
	pl, err := trackseq.NewPlayer(*sampleRate,
		trackseq.WithChannels(*channels),
		trackseq.WithBackend(be),
		trackseq.WithLoopPlayback(*loop),
		trackseq.WithPlayerLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}
	pl.SetMasterVolume(*volume)
	for band, gain := range cfg.EQ {
		pl.SetEQBand(band, gain)
	}
	ch := pl.Watch()
	if err := pl.Play(seqs...); err != nil {
		log.Fatal(err)
	}
	maxLoops := 0
	if *loop {
		maxLoops = *loops
	}
	names := make([]string, len(seqs))
	for i, s := range seqs {
		names[i] = s.Name()
	}
	if err := followEvents(ch, names, maxLoops, pl.Stop); err != nil {
		log.Fatal(err)
	}
	pl.Wait()
}

// followEvents reports playback events until the mix ends. After maxLoops
// loops of the first sequence it calls stop; 0 never stops.
func followEvents(events <-chan trackseq.PlaybackEvent, names []string, maxLoops int, stop func() error) error {
	loopCount := 0
	for event := range events {
		switch event.Kind {
		case trackseq.EventPlaybackEnded:
			if event.Sequence < 0 {
				fmt.Println("playback completed")
				return nil
			}
			fmt.Printf("%s ended\n", names[event.Sequence])
		case trackseq.EventLoopCompleted:
			if event.Sequence != 0 {
				continue
			}
			loopCount++
			fmt.Printf("loop %d completed\n", loopCount)
			if maxLoops > 0 && loopCount >= maxLoops {
				if err := stop(); err != nil {
					return fmt.Errorf("stop after %d loops: %w", loopCount, err)
				}
			}
		case trackseq.EventUnderrun:
			fmt.Println("underrun")
		case trackseq.EventError:
			return event.Err
		}
	}
	return nil
}

// loadAll loads every sequence concurrently, keeping argument order.
func loadAll(paths []string, opts []trackseq.LoadOption) ([]*trackseq.Sequence, error) {
	seqs := make([]*trackseq.Sequence, len(paths))
	group, ctx := errgroup.WithContext(context.Background())
	for i, path := range paths {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := trackseq.Load(path, opts...)
			if err != nil {
				return err
			}
			seqs[i] = s
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return seqs, nil
}

// renderAll mixes the offline renders of seqs into one WAV file.
func renderAll(path string, seqs []*trackseq.Sequence, seconds, volume float64) error {
	var mix []float32
	for _, s := range seqs {
		out, err := trackseq.Render(s, seconds)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		mix = mixInto(mix, out, float32(volume))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trackseq.WriteWAV(f, mix, seqs[0].Rate(), seqs[0].Channels()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mixInto(dst, src []float32, gain float32) []float32 {
	for len(dst) < len(src) {
		dst = append(dst, 0)
	}
	for i, v := range src {
		dst[i] += v * gain
	}
	return dst
}

func parseBackend(name string) (trackseq.Backend, error) {
	switch trackseq.Backend(name) {
	case trackseq.BackendEbiten, trackseq.BackendOto:
		return trackseq.Backend(name), nil
	}
	return "", fmt.Errorf("invalid -backend %q (expected ebiten|oto)", name)
}
