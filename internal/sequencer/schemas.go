package sequencer

import (
	"fmt"

	"github.com/cbegin/trackseq-go/internal/device"
	"github.com/cbegin/trackseq-go/internal/timeline"
)

// Kind is a channel variant.
type Kind uint8

const (
	KindSilence Kind = iota
	KindPlayer
	KindFilter
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindSilence:
		return "silence"
	case KindPlayer:
		return "player"
	case KindFilter:
		return "filter"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func ParseKind(s string) (Kind, bool) {
	for k := KindSilence; k < numKinds; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Silence row fields, in file order.
const (
	silOutput = iota
	silOutPos
	silReqTime
	silReqTimeEvent
	silOutBufEvent
)

// Player row fields, in file order.
const (
	plInput = iota
	plInPos
	plOutput
	plOutPos
	plReqTime
	plVolume
	plVolumeSource
	plSpeed
	plSpeedSource
	plPhaseSource
	plLoopStart
	plLoopLength
	plStartSource
	plLengthSource
	plMode
	plReqTimeEvent
	plOutBufEvent
	plInBufEvent
	plVolBufEvent
	plSpeedBufEvent
	plPhaseBufEvent
	plStartBufEvent
	plLengthBufEvent
)

// Filter row fields, in file order.
const (
	fiInput = iota
	fiInPos
	fiOutput
	fiOutPos
	fiReqTime
	fiVolume
	fiVolumeSource
	fiFilter
	fiFilterStart
	fiSlices
	fiSlice
	fiSliceSource
	fiReqTimeEvent
	fiOutBufEvent
	fiInBufEvent
	fiVolBufEvent
	fiSliceBufEvent
)

type followUp struct {
	reason device.StopReason
	field  int
}

var kindLayouts = [numKinds]struct {
	fields    []timeline.FieldType
	followUps []followUp
}{
	KindSilence: {
		fields: []timeline.FieldType{timeline.FieldInt, timeline.FieldFloat, timeline.FieldFloat},
		followUps: []followUp{
			{device.StopRequest, silReqTimeEvent},
			{device.StopOutput, silOutBufEvent},
		},
	},
	KindPlayer: {
		fields: []timeline.FieldType{
			timeline.FieldInt, timeline.FieldFloat, timeline.FieldInt, timeline.FieldFloat,
			timeline.FieldFloat, timeline.FieldFloat, timeline.FieldInt, timeline.FieldString,
			timeline.FieldInt, timeline.FieldInt, timeline.FieldFloat, timeline.FieldFloat,
			timeline.FieldInt, timeline.FieldInt, timeline.FieldString,
		},
		followUps: []followUp{
			{device.StopRequest, plReqTimeEvent},
			{device.StopOutput, plOutBufEvent},
			{device.StopInput, plInBufEvent},
			{device.StopVolume, plVolBufEvent},
			{device.StopSpeed, plSpeedBufEvent},
			{device.StopPhase, plPhaseBufEvent},
			{device.StopStart, plStartBufEvent},
			{device.StopLength, plLengthBufEvent},
		},
	},
	KindFilter: {
		fields: []timeline.FieldType{
			timeline.FieldInt, timeline.FieldFloat, timeline.FieldInt, timeline.FieldFloat,
			timeline.FieldFloat, timeline.FieldFloat, timeline.FieldInt, timeline.FieldInt,
			timeline.FieldFloat, timeline.FieldInt, timeline.FieldInt, timeline.FieldInt,
		},
		followUps: []followUp{
			{device.StopRequest, fiReqTimeEvent},
			{device.StopOutput, fiOutBufEvent},
			{device.StopInput, fiInBufEvent},
			{device.StopVolume, fiVolBufEvent},
			{device.StopSlice, fiSliceBufEvent},
		},
	},
}

// registerSchemas declares one schema per channel kind. Follow-up fields are
// rows of the kind's own schema and come after the plain fields, in the order
// of the layout's followUps (which is also the order of the field constants).
func registerSchemas(reg *timeline.Registry) ([numKinds]timeline.SchemaID, error) {
	var ids [numKinds]timeline.SchemaID
	for k := KindSilence; k < numKinds; k++ {
		id := reg.AddSchema()
		layout := kindLayouts[k]
		for _, ft := range layout.fields {
			if err := reg.AddField(id, ft, 0); err != nil {
				return ids, err
			}
		}
		for range layout.followUps {
			if err := reg.AddField(id, timeline.FieldRow, id); err != nil {
				return ids, err
			}
		}
		ids[k] = id
	}
	return ids, nil
}
