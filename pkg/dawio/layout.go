package dawio

import (
	"encoding/json"
	"fmt"
)

// LayoutKind tags the variant held by a ChannelLayout.
type LayoutKind int

// Channel layout variants.
const (
	LayoutUnspecified LayoutKind = iota
	LayoutMono
	LayoutMultiMono
	LayoutStereo
	LayoutMultiStereo
	LayoutStereoX2SpeakerHeadphone
	LayoutOther
)

var layoutNames = map[LayoutKind]string{
	LayoutUnspecified:              "unspecified",
	LayoutMono:                     "mono",
	LayoutMultiMono:                "multi_mono",
	LayoutStereo:                   "stereo",
	LayoutMultiStereo:              "multi_stereo",
	LayoutStereoX2SpeakerHeadphone: "stereo_x2_speaker_headphone",
	LayoutOther:                    "other",
}

func (k LayoutKind) String() string {
	if name, ok := layoutNames[k]; ok {
		return name
	}
	return fmt.Sprintf("layout(%d)", int(k))
}

// MarshalJSON encodes the kind by name.
func (k LayoutKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// StereoPair is a left/right pair of port indices.
type StereoPair struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// ChannelLayout is a default channel layout hint published by a device.
// Hints are never mandatory.
type ChannelLayout struct {
	Kind LayoutKind `json:"kind"`

	// Mono holds the channels for LayoutMono (one entry) and
	// LayoutMultiMono.
	Mono []int `json:"mono,omitempty"`

	// Stereo holds the pairs for LayoutStereo (one entry),
	// LayoutMultiStereo, and LayoutStereoX2SpeakerHeadphone (speaker pair
	// first, headphone pair second).
	Stereo []StereoPair `json:"stereo,omitempty"`

	// Channels and Name describe LayoutOther.
	OtherChannels []int  `json:"other_channels,omitempty"`
	Name          string `json:"name,omitempty"`
}

// MonoLayout returns a single mono channel layout.
func MonoLayout(ch int) ChannelLayout {
	return ChannelLayout{Kind: LayoutMono, Mono: []int{ch}}
}

// MultiMonoLayout returns a layout of independent mono channels.
func MultiMonoLayout(chs ...int) ChannelLayout {
	return ChannelLayout{Kind: LayoutMultiMono, Mono: chs}
}

// StereoLayout returns a single stereo pair layout.
func StereoLayout(left, right int) ChannelLayout {
	return ChannelLayout{Kind: LayoutStereo, Stereo: []StereoPair{{Left: left, Right: right}}}
}

// MultiStereoLayout returns a layout of several stereo pairs.
func MultiStereoLayout(pairs ...StereoPair) ChannelLayout {
	return ChannelLayout{Kind: LayoutMultiStereo, Stereo: pairs}
}

// SpeakerHeadphoneLayout returns a layout with a speaker pair and a
// headphone pair.
func SpeakerHeadphoneLayout(speaker, headphone StereoPair) ChannelLayout {
	return ChannelLayout{Kind: LayoutStereoX2SpeakerHeadphone, Stereo: []StereoPair{speaker, headphone}}
}

// OtherLayout returns a named layout over arbitrary channels.
func OtherLayout(name string, chs ...int) ChannelLayout {
	return ChannelLayout{Kind: LayoutOther, Name: name, OtherChannels: chs}
}

// Channels flattens the layout to port indices in playback order.
func (l ChannelLayout) Channels() []int {
	switch l.Kind {
	case LayoutMono, LayoutMultiMono:
		return append([]int(nil), l.Mono...)
	case LayoutStereo, LayoutMultiStereo, LayoutStereoX2SpeakerHeadphone:
		out := make([]int, 0, 2*len(l.Stereo))
		for _, p := range l.Stereo {
			out = append(out, p.Left, p.Right)
		}
		return out
	case LayoutOther:
		return append([]int(nil), l.OtherChannels...)
	default:
		return nil
	}
}

// PrimaryChannels returns the channels of the first unit of the layout: the
// first mono channel or the first stereo pair.
func (l ChannelLayout) PrimaryChannels() []int {
	switch l.Kind {
	case LayoutMono, LayoutMultiMono:
		if len(l.Mono) > 0 {
			return []int{l.Mono[0]}
		}
	case LayoutStereo, LayoutMultiStereo, LayoutStereoX2SpeakerHeadphone:
		if len(l.Stereo) > 0 {
			return []int{l.Stereo[0].Left, l.Stereo[0].Right}
		}
	case LayoutOther:
		return append([]int(nil), l.OtherChannels...)
	}
	return nil
}

// HasStereo reports whether the layout carries at least one stereo pair.
func (l ChannelLayout) HasStereo() bool {
	switch l.Kind {
	case LayoutStereo, LayoutMultiStereo, LayoutStereoX2SpeakerHeadphone:
		return len(l.Stereo) > 0
	}
	return false
}
