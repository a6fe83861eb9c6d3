package formats

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/vidfetch/vidfetch/server/internal/platform"
)

type Kind string

const (
	KindVideo     Kind = "video"
	KindVideoOnly Kind = "video_only"
	KindAudio     Kind = "audio"
)

// FormatOption is one selectable quality of a video.
// Selector is opaque to everything but the backend that produced it.
type FormatOption struct {
	Selector  string            `json:"selector"`
	Label     string            `json:"label"`
	Kind      Kind              `json:"kind"`
	SizeBytes int64             `json:"size_bytes"`
	Platform  platform.Platform `json:"platform"`
	Height    int               `json:"height,omitempty"`
	Bitrate   float64           `json:"bitrate,omitempty"` // kbps
	Ext       string            `json:"ext,omitempty"`
}

func (f FormatOption) IsAudio() bool { return f.Kind == KindAudio }

func (f FormatOption) quality() float64 {
	if f.IsAudio() {
		return f.Bitrate
	}
	return float64(f.Height)
}

func (f FormatOption) group() int {
	switch {
	case f.quality() <= 0:
		return 2
	case f.IsAudio():
		return 1
	default:
		return 0
	}
}

// Normalize dedupes and orders the raw format list of a backend.
//
// Video formats are deduplicated by height, the first seen entry wins.
// Only the audioKeep highest bitrate audio formats survive.
// Result is ordered by descending quality, videos before audio,
// formats without a numeric quality last.
func Normalize(raw []FormatOption, audioKeep int) []FormatOption {
	var (
		seenHeights = make(map[int]struct{})
		seenLabels  = make(map[string]struct{})
		videos      = make([]FormatOption, 0, len(raw))
		audios      = make([]FormatOption, 0)
	)

	for _, f := range raw {
		if f.IsAudio() {
			audios = append(audios, f)
			continue
		}

		if f.Height > 0 {
			if _, ok := seenHeights[f.Height]; ok {
				continue
			}
			seenHeights[f.Height] = struct{}{}
		} else {
			if _, ok := seenLabels[f.Label]; ok {
				continue
			}
			seenLabels[f.Label] = struct{}{}
		}

		videos = append(videos, f)
	}

	slices.SortStableFunc(audios, func(a, b FormatOption) int {
		return cmp.Compare(b.Bitrate, a.Bitrate)
	})
	if audioKeep >= 0 && len(audios) > audioKeep {
		audios = audios[:audioKeep]
	}

	out := append(videos, audios...)

	slices.SortStableFunc(out, func(a, b FormatOption) int {
		if c := cmp.Compare(a.group(), b.group()); c != 0 {
			return c
		}
		return cmp.Compare(b.quality(), a.quality())
	})

	return out
}

// Find returns the format identified by selector.
func Find(opts []FormatOption, selector string) (FormatOption, bool) {
	i := slices.IndexFunc(opts, func(f FormatOption) bool {
		return f.Selector == selector
	})
	if i < 0 {
		return FormatOption{}, false
	}
	return opts[i], true
}

// AudioLabel names an audio stream, keeping several of them apart by bitrate.
func AudioLabel(kbps float64) string {
	if kbps <= 0 {
		return "Audio Only"
	}
	return fmt.Sprintf("Audio Only (%.0fkbps)", kbps)
}
