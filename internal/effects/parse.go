package effects

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTagEffects is how many effectN tags FromTags looks at (effect0..effect7).
const MaxTagEffects = 8

var (
	ErrUnknownEffect = errors.New("unknown effect")
	ErrEffectParam   = errors.New("invalid effect parameter")
)

// Parse builds one effect from a description such as "delay 250,0.4,0.2,0.3".
// Missing parameters take their defaults.
func Parse(desc string, sampleRate, channels int) (Effector, error) {
	desc = strings.TrimSpace(desc)
	name, rest, _ := strings.Cut(desc, " ")
	var params []float64
	if rest = strings.TrimSpace(rest); rest != "" {
		for _, p := range strings.Split(rest, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("%w %q in %q", ErrEffectParam, p, desc)
			}
			params = append(params, v)
		}
	}
	param := func(idx int, def float64) float64 {
		if idx < len(params) {
			return params[idx]
		}
		return def
	}
	f := func(idx int, def float64) float32 { return float32(param(idx, def)) }

	switch strings.ToLower(name) {
	case "delay":
		return NewDelay(sampleRate, channels,
			param(0, 250), // delay ms
			f(1, 0.4),     // feedback
			f(2, 0.2),     // cross
			f(3, 0.3),     // wet
		), nil
	case "reverb":
		return NewReverb(sampleRate, f(0, 0.5), f(1, 0.7), f(2, 0.25)), nil
	case "chorus":
		return NewChorus(sampleRate, channels, f(0, 15), f(1, 0.3), f(2, 3), f(3, 1.5), f(4, 0.4)), nil
	case "dist", "distortion":
		return NewDistortion(sampleRate, channels, f(0, 4), f(1, 0.5), f(2, 8000)), nil
	case "eq":
		return NewEQ3Band(sampleRate, channels, f(0, 1), f(1, 1), f(2, 1), f(3, 300), f(4, 3000)), nil
	case "comp", "compressor":
		return NewCompressor(sampleRate, channels,
			f(0, -20), // threshold dB
			f(1, 4),   // ratio
			f(2, 5),   // attack ms
			f(3, 100), // release ms
			f(4, 6),   // makeup dB
		), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEffect, name)
}

// FromTags builds a chain from the effect0..effect7 entries of tags, in index
// order. It returns nil when no effect is declared.
func FromTags(tags map[string]string, sampleRate, channels int) (*Chain, error) {
	var chain *Chain
	for i := 0; i < MaxTagEffects; i++ {
		key := "effect" + strconv.Itoa(i)
		desc, ok := tags[key]
		if !ok || strings.TrimSpace(desc) == "" {
			continue
		}
		e, err := Parse(desc, sampleRate, channels)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", key, err)
		}
		if chain == nil {
			chain = NewChain()
		}
		chain.Add(e)
	}
	return chain, nil
}
