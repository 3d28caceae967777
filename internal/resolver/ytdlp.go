package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"
	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/spf13/afero"
)

// ytdlpInfo mirrors the subset of yt-dlp's --dump-json output we read.
type ytdlpInfo struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	Channel    string        `json:"channel"`
	Thumbnail  string        `json:"thumbnail"`
	Duration   float64       `json:"duration"`
	UploadDate string        `json:"upload_date"`
	ViewCount  int64         `json:"view_count"`
	ACodec     string        `json:"acodec"`
	Formats    []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution string  `json:"resolution"`
	FormatNote string  `json:"format_note"`
	FPS        float64 `json:"fps"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
}

var errNoOutput = errors.New("yt-dlp produced no output")

const noDataDetail = "No data returned from video processing service."

// decodeYtDlpJSON turns one yt-dlp JSON document into a Raw object.
func decodeYtDlpJSON(stdout string) (*video.Raw, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, errNoOutput
	}
	var info ytdlpInfo
	if err := json.Unmarshal([]byte(trimmed), &info); err != nil {
		return nil, fmt.Errorf("decoding yt-dlp output: %w", err)
	}
	raw := &video.Raw{
		Title:           info.Title,
		Uploader:        info.Uploader,
		Channel:         info.Channel,
		Thumbnail:       info.Thumbnail,
		DurationSeconds: info.Duration,
		UploadDate:      info.UploadDate,
		ViewCount:       info.ViewCount,
		ACodec:          info.ACodec,
		Formats:         make([]video.StreamFormat, 0, len(info.Formats)),
	}
	for _, f := range info.Formats {
		raw.Formats = append(raw.Formats, video.StreamFormat{
			ID:         f.FormatID,
			Height:     f.Height,
			Width:      f.Width,
			Resolution: f.Resolution,
			Note:       noteForHeight(f.FormatNote, f.Height),
			Container:  f.Ext,
			FPS:        f.FPS,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
		})
	}
	return raw, nil
}

// noteForHeight keeps yt-dlp notes that read like a quality label ("1080p",
// "1080p60") and drops the rest ("DASH video", "storyboard").
func noteForHeight(note string, height int) string {
	note = strings.TrimSpace(note)
	if height <= 0 || note == "" {
		return ""
	}
	if strings.HasPrefix(note, fmt.Sprintf("%dp", height)) {
		return note
	}
	return ""
}

// ytdlpRunner executes yt-dlp and returns its captured output.
type ytdlpRunner func(ctx context.Context, executable string, args ...string) (stdout, stderr string, err error)

func runYtDlp(ctx context.Context, executable string, args ...string) (string, string, error) {
	cmd := ytdlp.New().SetExecutable(executable)
	if len(args) > 0 && args[0] == "--version" {
		res, err := cmd.Run(ctx, args...)
		return resultOutput(res, err)
	}
	cmd = cmd.
		DumpJSON().
		SkipDownload().
		NoPlaylist().
		NoWarnings().
		NoCheckCertificates().
		ForceIPv4()
	res, err := cmd.Run(ctx, args...)
	return resultOutput(res, err)
}

func resultOutput(res *ytdlp.Result, err error) (string, string, error) {
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}

// ytdlpBackend shells out to a yt-dlp executable. The cli and bundled
// backends differ only in how that executable is located.
type ytdlpBackend struct {
	name   string
	locate func(ctx context.Context) (string, error)
	run    ytdlpRunner
}

func (b *ytdlpBackend) Name() string { return b.name }

func (b *ytdlpBackend) Resolve(ctx context.Context, ref video.Reference) (*video.Raw, error) {
	executable, err := b.locate(ctx)
	if err != nil {
		return nil, video.Unavailable(b.name, err)
	}
	stdout, stderr, err := b.run(ctx, executable, ref.WatchURL())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, video.Unavailable(b.name, ctxErr)
		}
		if isMissingExecutable(err) {
			return nil, video.Unavailable(b.name, err)
		}
		return nil, video.Classified(b.name, strings.TrimSpace(stderr), err)
	}
	raw, err := decodeYtDlpJSON(stdout)
	if errors.Is(err, errNoOutput) {
		return nil, video.Classified(b.name, noDataDetail, err)
	}
	if err != nil {
		return nil, video.Classified(b.name, "", err)
	}
	return raw, nil
}

func (b *ytdlpBackend) Check(ctx context.Context) (string, error) {
	executable, err := b.locate(ctx)
	if err != nil {
		return "", err
	}
	stdout, stderr, err := b.run(ctx, executable, "--version")
	if err != nil {
		if strings.TrimSpace(stderr) != "" {
			return "", fmt.Errorf("%s --version: %w: %s", executable, err, strings.TrimSpace(stderr))
		}
		return "", fmt.Errorf("%s --version: %w", executable, err)
	}
	return fmt.Sprintf("%s %s", executable, strings.TrimSpace(stdout)), nil
}

func isMissingExecutable(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

var lookPath = exec.LookPath

// NewCLIBackend resolves through a yt-dlp found on PATH (or at path).
func NewCLIBackend(path string) Backend {
	if strings.TrimSpace(path) == "" {
		path = "yt-dlp"
	}
	return &ytdlpBackend{
		name: BackendCLI,
		locate: func(context.Context) (string, error) {
			resolved, err := lookPath(path)
			if err != nil {
				return "", fmt.Errorf("yt-dlp executable %q not found: %w", path, err)
			}
			return resolved, nil
		},
		run: runYtDlp,
	}
}

// installYtDlp downloads a pinned yt-dlp release into the library cache.
var installYtDlp = func(ctx context.Context) (string, error) {
	resolved, err := ytdlp.Install(ctx, &ytdlp.InstallOptions{DisableSystem: true})
	if err != nil {
		return "", err
	}
	return resolved.Executable, nil
}

// bundledLocator prefers an executable shipped in installDir and falls back
// to a managed install. Only a successful install is remembered; a failed
// one is retried by the next request.
type bundledLocator struct {
	fs         afero.Fs
	installDir string

	mu         sync.Mutex
	executable string
}

func (l *bundledLocator) locate(ctx context.Context) (string, error) {
	if path, ok := l.shipped(); ok {
		return path, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.executable != "" {
		return l.executable, nil
	}
	executable, err := installYtDlp(context.WithoutCancel(ctx))
	if err != nil {
		return "", fmt.Errorf("installing bundled yt-dlp: %w", err)
	}
	l.executable = executable
	return executable, nil
}

func (l *bundledLocator) shipped() (string, bool) {
	if strings.TrimSpace(l.installDir) == "" {
		return "", false
	}
	name := "yt-dlp"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path := filepath.Join(l.installDir, name)
	info, err := l.fs.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs, true
	}
	return path, true
}

// NewBundledBackend resolves through a yt-dlp binary managed by the
// service itself.
func NewBundledBackend(fs afero.Fs, installDir string) Backend {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	locator := &bundledLocator{fs: fs, installDir: installDir}
	return &ytdlpBackend{
		name:   BackendBundled,
		locate: locator.locate,
		run:    runYtDlp,
	}
}
