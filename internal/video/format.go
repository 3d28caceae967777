package video

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const audioOnlyLabel = "Audio Only"

// StreamFormat is one encoded variant reported by a backend.
type StreamFormat struct {
	ID         string
	Height     int
	Width      int
	Resolution string
	Note       string
	Container  string
	FPS        float64
	VCodec     string
	ACodec     string
}

// Selection is the outcome of SelectBest. Format is nil for audio-only
// content.
type Selection struct {
	Format *StreamFormat
	Height int
	Label  string
}

// SelectBest picks the format with the greatest height. Formats without a
// usable height are skipped; when none has one, "WxH" resolution strings
// are parsed instead. Ties keep the first candidate.
func SelectBest(formats []StreamFormat, hasAudio bool) (Selection, error) {
	best, height := -1, 0
	for i := range formats {
		if h := formats[i].Height; h > height {
			best, height = i, h
		}
	}
	if best < 0 {
		for i := range formats {
			if h := parseResolutionHeight(formats[i].Resolution); h > height {
				best, height = i, h
			}
		}
	}

	if best < 0 {
		if hasAudio {
			return Selection{Label: audioOnlyLabel}, nil
		}
		return Selection{}, &Error{
			Kind:     KindResolutionFailed,
			Category: CategoryNoData,
			Message:  classifierRuleMessageFor("does not point to a valid video or audio stream"),
			Err:      errors.New("url does not point to a valid video or audio stream"),
		}
	}

	format := &formats[best]
	label := strings.TrimSpace(format.Note)
	if label == "" {
		label = fmt.Sprintf("%dp", height)
	}
	return Selection{Format: format, Height: height, Label: label}, nil
}

// HasAudio reports whether the content carries an audio codec either at the
// top level or on any format.
func HasAudio(topLevel string, formats []StreamFormat) bool {
	if codecPresent(topLevel) {
		return true
	}
	for _, f := range formats {
		if codecPresent(f.ACodec) {
			return true
		}
	}
	return false
}

func codecPresent(codec string) bool {
	codec = strings.TrimSpace(codec)
	return codec != "" && codec != "none"
}

func parseResolutionHeight(resolution string) int {
	parts := strings.Split(resolution, "x")
	if len(parts) != 2 {
		return 0
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h < 0 {
		return 0
	}
	return h
}

func classifierRuleMessageFor(text string) string {
	return Classify(text).Message
}
