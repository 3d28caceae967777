package resolver

import (
	"context"

	"github.com/lvcoi/freeytzone/internal/video"
)

// DemoBackend returns fixed metadata without touching the network. It backs
// deployments where no extraction tool may run.
type DemoBackend struct{}

func (DemoBackend) Name() string { return BackendDemo }

func (DemoBackend) Resolve(_ context.Context, ref video.Reference) (*video.Raw, error) {
	return &video.Raw{
		Title:           "Demo Video Title",
		Uploader:        "Demo Channel",
		Thumbnail:       video.ThumbnailURL(ref.ID),
		DurationSeconds: 180,
		UploadDate:      "20230101",
		ViewCount:       1000000,
		ACodec:          "mp4a.40.2",
		Formats: []video.StreamFormat{{
			ID:         "demo-format",
			Height:     1080,
			Width:      1920,
			Resolution: "1920x1080",
			Note:       "1080p Full HD",
			Container:  "mp4",
			FPS:        30,
			VCodec:     "avc1",
			ACodec:     "mp4a.40.2",
		}},
	}, nil
}

func (DemoBackend) Check(context.Context) (string, error) {
	return "demo mode, no extraction tool in use", nil
}
