package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/lvcoi/freeytzone/internal/video"
)

// YouTubeClient is the slice of *youtube.Client the library backend needs.
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
}

// Compile-time check: *youtube.Client must implement YouTubeClient.
var _ YouTubeClient = (*youtube.Client)(nil)

// LibraryBackend resolves metadata in-process through the kkdai/youtube
// client, with no external executable.
type LibraryBackend struct {
	client YouTubeClient
}

// NewLibraryBackend wraps client, or builds a private *youtube.Client when
// client is nil. The package-level youtube.DefaultClient is never touched.
func NewLibraryBackend(client YouTubeClient, timeout time.Duration) *LibraryBackend {
	if client == nil {
		client = &youtube.Client{HTTPClient: NewHTTPClient(timeout)}
	}
	return &LibraryBackend{client: client}
}

func (b *LibraryBackend) Name() string { return BackendLibrary }

func (b *LibraryBackend) Resolve(ctx context.Context, ref video.Reference) (*video.Raw, error) {
	v, err := b.client.GetVideoContext(ctx, ref.WatchURL())
	if err != nil {
		return nil, libraryError(ctx, err)
	}
	if v == nil {
		return nil, video.Classified(BackendLibrary, noDataDetail, errors.New("library returned a nil video"))
	}
	return rawFromLibrary(v), nil
}

func libraryError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return video.Unavailable(BackendLibrary, err)
	}
	var status youtube.ErrUnexpectedStatusCode
	if errors.As(err, &status) {
		switch int(status) {
		case http.StatusTooManyRequests:
			return video.Classified(BackendLibrary, "HTTP Error 429: Too Many Requests", err)
		case http.StatusGone:
			return video.Classified(BackendLibrary, "HTTP Error 410: Gone", err)
		}
		return video.Unavailable(BackendLibrary, err)
	}
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate):
		return video.Classified(BackendLibrary, "Private video", err)
	case errors.Is(err, youtube.ErrLoginRequired):
		return video.Classified(BackendLibrary, "Sign in to confirm your age", err)
	}
	return video.Classified(BackendLibrary, err.Error(), err)
}

func rawFromLibrary(v *youtube.Video) *video.Raw {
	raw := &video.Raw{
		Title:           v.Title,
		AuthorName:      v.Author,
		Thumbnail:       bestThumbnailURL(v.Thumbnails),
		DurationSeconds: v.Duration.Seconds(),
		ViewCount:       int64(v.Views),
		Formats:         make([]video.StreamFormat, 0, len(v.Formats)),
	}
	if !v.PublishDate.IsZero() {
		raw.UploadDate = v.PublishDate.UTC().Format("20060102")
	}
	for _, f := range v.Formats {
		sf := video.StreamFormat{
			ID:        fmt.Sprintf("%d", f.ItagNo),
			Height:    f.Height,
			Width:     f.Width,
			Note:      f.QualityLabel,
			Container: mimeToExt(f.MimeType),
			FPS:       float64(f.FPS),
		}
		if f.AudioChannels > 0 {
			sf.ACodec = codecFromMime(f.MimeType)
			if raw.ACodec == "" {
				raw.ACodec = sf.ACodec
			}
		} else {
			sf.ACodec = "none"
		}
		if f.Height > 0 {
			sf.VCodec = codecFromMime(f.MimeType)
		} else {
			sf.VCodec = "none"
		}
		raw.Formats = append(raw.Formats, sf)
	}
	return raw
}

func bestThumbnailURL(thumbnails youtube.Thumbnails) string {
	bestURL := ""
	var bestArea uint
	for _, thumb := range thumbnails {
		area := thumb.Width * thumb.Height
		if area >= bestArea {
			bestArea = area
			bestURL = thumb.URL
		}
	}
	return bestURL
}

func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		switch parts[1] {
		case "3gpp":
			return "3gp"
		default:
			return parts[1]
		}
	}
	return ""
}

// codecFromMime pulls the first codec out of `video/mp4; codecs="avc1, mp4a"`.
func codecFromMime(mime string) string {
	_, params, ok := strings.Cut(mime, "codecs=")
	if !ok {
		return "unknown"
	}
	params = strings.Trim(params, `" `)
	first, _, _ := strings.Cut(params, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return "unknown"
	}
	return first
}
