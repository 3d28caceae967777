package video

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

const placeholder = "N/A"

// Raw is the backend-neutral object every backend returns. Backends fill
// whichever naming they natively have (Uploader, Channel or AuthorName;
// DurationSeconds or DurationISO) and Normalize reconciles them.
type Raw struct {
	Title           string
	Uploader        string
	Channel         string
	AuthorName      string
	Thumbnail       string
	DurationSeconds float64
	DurationISO     string
	UploadDate      string
	ViewCount       int64
	ACodec          string
	Formats         []StreamFormat
}

// FormatSummary is the browser-facing view of the selected format.
type FormatSummary struct {
	FormatID   string  `json:"formatId"`
	Container  string  `json:"container"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
}

// Metadata is the sole data contract returned to the browser. Every field
// is always populated, falling back to "N/A", 0 or "".
type Metadata struct {
	VideoID    string        `json:"videoId"`
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	Thumbnail  string        `json:"thumbnail"`
	Duration   int           `json:"duration"`
	UploadDate string        `json:"uploadDate"`
	ViewCount  int64         `json:"viewCount"`
	MaxQuality string        `json:"maxQuality"`
	MaxHeight  int           `json:"maxHeight"`
	MaxFormat  FormatSummary `json:"maxFormat"`
	IsShorts   bool          `json:"isShorts"`
	Backend    string        `json:"backend"`
}

// Normalize maps a backend's raw object onto Metadata, selecting the best
// format on the way.
func Normalize(ref Reference, backend string, raw *Raw) (Metadata, error) {
	if raw == nil {
		return Metadata{}, &Error{
			Kind:     KindResolutionFailed,
			Category: CategoryNoData,
			Backend:  backend,
			Message:  Classify("No data returned").Message,
			Err:      fmt.Errorf("%s returned no data for %s", backend, ref.ID),
		}
	}

	selection, err := SelectBest(raw.Formats, HasAudio(raw.ACodec, raw.Formats))
	if err != nil {
		if e, ok := asError(err); ok {
			e.Backend = backend
		}
		return Metadata{}, err
	}

	duration, err := normalizeDuration(raw)
	if err != nil {
		return Metadata{}, &Error{
			Kind:     KindResolutionFailed,
			Category: CategoryGeneric,
			Backend:  backend,
			Message:  genericMessage,
			Err:      err,
		}
	}

	meta := Metadata{
		VideoID:    ref.ID,
		Title:      stringsOrFallback(raw.Title, placeholder),
		Uploader:   stringsOrFallback(raw.Uploader, raw.Channel, raw.AuthorName, placeholder),
		Thumbnail:  strings.TrimSpace(raw.Thumbnail),
		Duration:   duration,
		UploadDate: strings.TrimSpace(raw.UploadDate),
		ViewCount:  lo.Max([]int64{raw.ViewCount, 0}),
		MaxQuality: stringsOrFallback(selection.Label, placeholder),
		MaxHeight:  selection.Height,
		MaxFormat:  summarizeFormat(selection.Format),
		IsShorts:   IsShorts(ref.URL),
		Backend:    backend,
	}
	return meta, nil
}

func normalizeDuration(raw *Raw) (int, error) {
	if iso := strings.TrimSpace(raw.DurationISO); iso != "" {
		return ParseISODuration(iso)
	}
	if raw.DurationSeconds < 0 || raw.DurationSeconds > math.MaxInt32 {
		return 0, nil
	}
	return int(raw.DurationSeconds), nil
}

func summarizeFormat(f *StreamFormat) FormatSummary {
	if f == nil {
		return FormatSummary{FormatID: placeholder, Container: placeholder, Resolution: placeholder}
	}
	resolution := strings.TrimSpace(f.Resolution)
	if resolution == "" && f.Width > 0 && f.Height > 0 {
		resolution = fmt.Sprintf("%dx%d", f.Width, f.Height)
	}
	return FormatSummary{
		FormatID:   stringsOrFallback(f.ID, placeholder),
		Container:  stringsOrFallback(f.Container, placeholder),
		Resolution: stringsOrFallback(resolution, placeholder),
		FPS:        f.FPS,
	}
}

func stringsOrFallback(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
