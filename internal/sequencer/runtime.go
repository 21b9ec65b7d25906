package sequencer

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/cbegin/trackseq-go/internal/device"
	"github.com/cbegin/trackseq-go/internal/timeline"
)

// runtime drives the channels of one loaded sequence.
type runtime struct {
	rows     *timeline.RowTable
	buffers  *BufferTable
	channels []channel // channels[i] is column i+1
	outPos   int
	stall    int
	log      *slog.Logger

	onBlock func(samples int, delta timeline.Line)
}

func newRuntime(kinds []Kind, rows *timeline.RowTable, buffers *BufferTable, rate, stall int, log *slog.Logger) *runtime {
	b := &binder{buffers: buffers, rate: rate}
	rt := &runtime{rows: rows, buffers: buffers, stall: stall, log: log}
	for _, k := range kinds {
		rt.channels = append(rt.channels, newChannel(k, b))
	}
	return rt
}

// beginWindow restarts the output-position counter for a new device period.
func (rt *runtime) beginWindow() {
	rt.outPos = 0
	rt.syncOutputs()
}

func (rt *runtime) syncOutputs() {
	for _, ch := range rt.channels {
		if rt.buffers.IsOutput(ch.output()) {
			ch.setOutPos(rt.outPos)
		}
	}
}

// runChannels applies delta and runs every channel for samples samples.
func (rt *runtime) runChannels(samples int, delta timeline.Line) error {
	if rt.onBlock != nil {
		rt.onBlock(samples, delta)
	}
	rt.outPos += samples
	for i, ch := range rt.channels {
		col := i + 1
		if delta != nil && delta[col] != timeline.NoRow {
			if err := ch.apply(rt.rows.Row(delta[col]).Values); err != nil {
				return fmt.Errorf("column %d: %w", col, err)
			}
		}
		if err := rt.runChannel(col, ch, samples); err != nil {
			return err
		}
	}
	rt.syncOutputs()
	return nil
}

// maxZeroProgress bounds the follow-up firings a channel gets in one block
// without producing a sample, even when every firing changes a field.
const maxZeroProgress = 1024

// runChannel services one channel until samples are produced or it can make
// no further progress this block.
func (rt *runtime) runChannel(col int, ch channel, samples int) error {
	st := ch.common()
	dev := ch.primitive()
	remaining := samples
	var last device.StopReason
	stalls, idle := 0, 0
	for remaining > 0 {
		get := remaining
		if st.pending < get {
			get = st.pending
		}
		got := 0
		if get > 0 {
			got = dev.Run(get)
		}
		if got > 0 {
			remaining -= got
			st.pending -= got
			stalls, idle = 0, 0
			continue
		}
		reason := device.StopRequest
		if get > 0 {
			reason = dev.StopReason()
		}
		fired, changed, err := rt.dispatch(ch, reason)
		if err != nil {
			return fmt.Errorf("column %d follow-up: %w", col, err)
		}
		if fired == 0 {
			rt.log.Debug("channel idle", "column", col, "kind", ch.kind(), "reason", reason)
			st.pending = 0
			break
		}
		idle++
		switch {
		case changed:
			last, stalls = 0, 0
		case reason == last:
			stalls++
		default:
			last, stalls = reason, 1
		}
		if stalls >= rt.stall || idle >= maxZeroProgress {
			rt.log.Debug("channel stalled", "column", col, "kind", ch.kind(), "reason", reason, "stalls", stalls, "iterations", idle)
			st.pending = 0
			break
		}
	}
	return nil
}

// dispatch applies every follow-up row bound to a bit of reason, in bit order,
// and reports whether any of them changed a field.
func (rt *runtime) dispatch(ch channel, reason device.StopReason) (int, bool, error) {
	st := ch.common()
	before := ch.settings()
	pending := st.pending
	follow := slices.Clone(st.follow)
	fired := 0
	for i, fu := range kindLayouts[ch.kind()].followUps {
		if reason&fu.reason == 0 || follow[i] == timeline.NoRow {
			continue
		}
		if err := ch.apply(rt.rows.Row(follow[i]).Values); err != nil {
			return fired, false, err
		}
		fired++
	}
	changed := ch.settings() != before || st.pending != pending || !slices.Equal(st.follow, follow)
	return fired, changed, nil
}
