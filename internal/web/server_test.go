package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/lvcoi/freeytzone/internal/config"
	"github.com/lvcoi/freeytzone/internal/resolver"
	"github.com/lvcoi/freeytzone/internal/scrape"
	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type stubBackend struct {
	raw *video.Raw
	err error
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Resolve(context.Context, video.Reference) (*video.Raw, error) {
	return b.raw, b.err
}

type stubConverter struct {
	link    scrape.Link
	err     error
	calls   int
	lastURL string
}

func (c *stubConverter) FetchLink(_ context.Context, youtubeURL string) (scrape.Link, error) {
	c.calls++
	c.lastURL = youtubeURL
	return c.link, c.err
}

func sampleRaw() *video.Raw {
	return &video.Raw{
		Title:           "Never Gonna Give You Up",
		Uploader:        "Rick Astley",
		Thumbnail:       "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
		DurationSeconds: 213,
		UploadDate:      "20091025",
		ViewCount:       1500000000,
		ACodec:          "mp4a.40.2",
		Formats: []video.StreamFormat{
			{ID: "137", Height: 1080, Width: 1920, Container: "mp4", FPS: 25, VCodec: "avc1"},
			{ID: "22", Height: 720, Width: 1280, Container: "mp4", FPS: 25, VCodec: "avc1", ACodec: "mp4a.40.2"},
		},
	}
}

func testConfig() config.Config {
	return config.Config{
		Server:       config.ServerConfig{Addr: "127.0.0.1", Port: 3000, Debug: true, CORSOrigins: []string{"*"}},
		Resolver:     config.ResolverConfig{Backend: "stub"},
		HTTPTimeout:  time.Second,
		DownloadMode: config.DownloadRedirect,
	}
}

func newTestServer(t *testing.T, cfg config.Config, backend resolver.Backend, converter scrape.Converter) http.Handler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "freeytzone.toml", []byte("[server]\n"), 0o644); err != nil {
		t.Fatalf("seed fs: %v", err)
	}
	srv, err := New(Options{
		Config:    cfg,
		Resolver:  resolver.NewResolver(backend, nil, log),
		Converter: converter,
		Logger:    log,
		LogPath:   "/tmp/logs/app.log",
		Fs:        fs,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Handler()
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeVideoInfo(t *testing.T, rec *httptest.ResponseRecorder) videoInfoResponse {
	t.Helper()
	var resp videoInfoResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestVideoInfoSuccess(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{raw: sampleRaw()}, &stubConverter{})

	rec := postJSON(t, h, "/api/video-info", `{"url":"https://youtu.be/dQw4w9WgXcQ?si=abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeVideoInfo(t, rec)
	if !resp.Success || resp.Data == nil {
		t.Fatalf("expected success with data, got %+v", resp)
	}
	if resp.Data.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("expected video id dQw4w9WgXcQ, got %q", resp.Data.VideoID)
	}
	if resp.Data.MaxQuality != "1080p" || resp.Data.MaxHeight != 1080 {
		t.Fatalf("expected 1080p, got %q/%d", resp.Data.MaxQuality, resp.Data.MaxHeight)
	}
	if resp.Data.Backend != "stub" {
		t.Fatalf("expected backend stub, got %q", resp.Data.Backend)
	}
}

func TestVideoInfoInvalidURL(t *testing.T) {
	backend := &stubBackend{raw: sampleRaw()}
	h := newTestServer(t, testConfig(), backend, &stubConverter{})

	for _, input := range []string{"https://vimeo.com/123", "not a url", ""} {
		rec := postJSON(t, h, "/api/video-info", fmt.Sprintf(`{"url":%q}`, input))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", input, rec.Code)
		}
		resp := decodeVideoInfo(t, rec)
		if resp.Success || resp.Message != "Invalid YouTube URL" {
			t.Fatalf("%q: unexpected body %+v", input, resp)
		}
	}
}

func TestVideoInfoClassifiedFailure(t *testing.T) {
	const stderr = "ERROR: [youtube] dQw4w9WgXcQ: HTTP Error 429: Too Many Requests"
	backend := &stubBackend{err: video.Classified("stub", stderr, errors.New("exit status 1"))}
	h := newTestServer(t, testConfig(), backend, &stubConverter{})

	rec := postJSON(t, h, "/api/video-info", `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	resp := decodeVideoInfo(t, rec)
	if resp.Success || resp.Message != "Error getting video information" {
		t.Fatalf("unexpected body %+v", resp)
	}
	if want := video.Classify(stderr).Message; resp.Error != want {
		t.Fatalf("expected classified message %q, got %q", want, resp.Error)
	}
	if strings.Contains(rec.Body.String(), "exit status") {
		t.Fatalf("raw detail leaked into response: %s", rec.Body.String())
	}
}

func TestVideoInfoRejectsBadBodies(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{raw: sampleRaw()}, &stubConverter{})

	if rec := postJSON(t, h, "/api/video-info", `{"url":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	oversized := fmt.Sprintf(`{"url":"%s"}`, strings.Repeat("a", maxRequestBodyBytes+1))
	if rec := postJSON(t, h, "/api/video-info", oversized); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/video-info", bytes.NewReader([]byte(`{"url":"x"}`)))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for text/plain, got %d", rec.Code)
	}

	if rec := get(t, h, "/api/video-info"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestVideoInfoAcceptsFormAndExtraFields(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{raw: sampleRaw()}, &stubConverter{})

	form := url.Values{"url": {"https://youtu.be/dQw4w9WgXcQ"}}
	req := httptest.NewRequest(http.MethodPost, "/api/video-info", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("form post: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeVideoInfo(t, rec); resp.Data == nil || resp.Data.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("form post: unexpected body %+v", resp)
	}

	rec = postJSON(t, h, "/api/video-info", `{"url":"https://youtu.be/dQw4w9WgXcQ","format":"mp4"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("extra field: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDownloadRedirect(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{}, &stubConverter{})

	rec := get(t, h, "/download?url=https://youtu.be/dQw4w9WgXcQ&format=mp3")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("unexpected Location %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="youtube-dQw4w9WgXcQ.mp3"` {
		t.Fatalf("unexpected Content-Disposition %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %q", got)
	}

	rec = get(t, h, "/download?url=https://youtu.be/dQw4w9WgXcQ")
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="youtube-dQw4w9WgXcQ.mp4"` {
		t.Fatalf("expected mp4 default, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("expected video/mp4, got %q", got)
	}
}

func TestDownloadValidation(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{}, &stubConverter{})

	tests := []struct {
		path string
		want string
	}{
		{"/download", "URL parameter is required"},
		{"/download?url=https://example.com/video", "Invalid YouTube URL"},
		{"/download?url=https://youtu.be/dQw4w9WgXcQ&format=../../x", "Unsupported format"},
	}
	for _, tt := range tests {
		rec := get(t, h, tt.path)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.path, rec.Code)
		}
		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: decode: %v", tt.path, err)
		}
		if body.Error != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.path, tt.want, body.Error)
		}
	}
}

func TestDownloadPlaceholder(t *testing.T) {
	cfg := testConfig()
	cfg.DownloadMode = config.DownloadPlaceholder
	h := newTestServer(t, cfg, &stubBackend{}, &stubConverter{})

	rec := get(t, h, "/download?url=https://www.youtube.com/shorts/dQw4w9WgXcQ&format=mp4")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"FreeYTZone Download Information",
		`href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"`,
		"Go to YouTube",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("placeholder page missing %q:\n%s", want, body)
		}
	}
}

func TestFetchDirectLink(t *testing.T) {
	converter := &stubConverter{link: scrape.Link{DownloadLink: "https://dl.example/abc.mp4", VideoTitle: "Clip"}}
	h := newTestServer(t, testConfig(), &stubBackend{}, converter)

	rec := postJSON(t, h, "/api/fetch-y2meta-download-link", `{"youtubeUrl":"https://youtu.be/dQw4w9WgXcQ"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var link scrape.Link
	if err := json.NewDecoder(rec.Body).Decode(&link); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if link != converter.link {
		t.Fatalf("expected %+v, got %+v", converter.link, link)
	}

	rec = postJSON(t, h, "/api/fetch-y2meta-download-link", `{"youtubeUrl":"  "}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "youtubeUrl is required") {
		t.Fatalf("expected 400 youtubeUrl is required, got %d %s", rec.Code, rec.Body.String())
	}
	if converter.calls != 1 {
		t.Fatalf("converter should not run for empty input, calls=%d", converter.calls)
	}
}

func TestFetchDirectLinkCleansInput(t *testing.T) {
	converter := &stubConverter{link: scrape.Link{DownloadLink: "https://dl.example/abc.mp4", VideoTitle: "Clip"}}
	h := newTestServer(t, testConfig(), &stubBackend{}, converter)

	rec := postJSON(t, h, "/api/fetch-y2meta-download-link", `{"youtubeUrl":"  @https://youtu.be/dQw4w9WgXcQ "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if converter.lastURL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Fatalf("converter received %q", converter.lastURL)
	}
}

func TestFetchDirectLinkStepFailure(t *testing.T) {
	const message = "Failed to extract video token from y2meta page."
	converter := &stubConverter{err: &video.Error{
		Kind:    video.KindScrapeFailed,
		Backend: "y2meta",
		Step:    "video-token",
		Message: message,
		Detail:  "<html>changed layout</html>",
	}}
	h := newTestServer(t, testConfig(), &stubBackend{}, converter)

	rec := postJSON(t, h, "/api/fetch-y2meta-download-link", `{"youtubeUrl":"https://youtu.be/dQw4w9WgXcQ"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != message {
		t.Fatalf("expected %q, got %q", message, body.Error)
	}
}

func TestConfigEndpoint(t *testing.T) {
	cfg := testConfig()
	cfg.YouTube.APIKey = "configured-key"
	h := newTestServer(t, cfg, &stubBackend{}, &stubConverter{})

	rec := get(t, h, "/api/config")
	var body configResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.YoutubeAPIKey != "configured-key" {
		t.Fatalf("expected configured key, got %q", body.YoutubeAPIKey)
	}
}

func TestDebugEndpoint(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{}, &stubConverter{})

	rec := get(t, h, "/debug")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body debugResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.GoVersion == "" || body.Platform == "" {
		t.Fatalf("expected runtime info, got %+v", body)
	}
	if body.LogsPath != "/tmp/logs/app.log" {
		t.Fatalf("unexpected logs path %q", body.LogsPath)
	}
	if _, ok := body.BackendStatus["stub"]; !ok {
		t.Fatalf("expected backend status for stub, got %v", body.BackendStatus)
	}
	found := false
	for _, name := range body.DirectoryList {
		found = found || name == "freeytzone.toml"
	}
	if !found {
		t.Fatalf("expected freeytzone.toml in directory listing, got %v", body.DirectoryList)
	}

	cfg := testConfig()
	cfg.Server.Debug = false
	h = newTestServer(t, cfg, &stubBackend{}, &stubConverter{})
	if rec := get(t, h, "/debug"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with debug disabled, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{}, &stubConverter{})

	rec := get(t, h, "/healthz")
	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("unexpected health response %d %+v", rec.Code, body)
	}
}

func TestStaticAssetsAndFallback(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{}, &stubConverter{})

	for _, path := range []string{"/", "/some/client/route"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="videoForm"`) {
			t.Fatalf("%s: expected index page, got %d", path, rec.Code)
		}
	}

	rec := get(t, h, "/script.js")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/video-info") {
		t.Fatalf("expected script.js, got %d", rec.Code)
	}

	rec = get(t, h, "/api/unknown")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown API path, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON 404, got %q", ct)
	}
}

func TestResponseHeaders(t *testing.T) {
	h := newTestServer(t, testConfig(), &stubBackend{}, &stubConverter{})

	for _, path := range []string{"/", "/healthz", "/api/config"} {
		rec := get(t, h, path)
		if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("%s: expected X-Content-Type-Options=nosniff, got %q", path, got)
		}
		if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Fatalf("%s: expected X-Frame-Options=DENY, got %q", path, got)
		}
		csp := rec.Header().Get("Content-Security-Policy")
		if !strings.Contains(csp, "default-src 'self'") || !strings.Contains(csp, "https://i.ytimg.com") {
			t.Fatalf("%s: expected CSP allowing thumbnails, got %q", path, csp)
		}
		if rec.Header().Get(requestIDHeader) == "" {
			t.Fatalf("%s: expected %s header", path, requestIDHeader)
		}
	}

	const inbound = "0b6f1c5e-3f5b-4a53-9a53-2f4b7d0f9b11"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, inbound)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != inbound {
		t.Fatalf("expected inbound request id to be kept, got %q", got)
	}
}

func TestListenSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port
	if busyPort+maxPortAttempts > 65535 {
		t.Skip("ephemeral port too close to the top of the range")
	}

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := testConfig()
	cfg.Server.Port = busyPort
	srv := &Server{cfg: cfg, log: log}

	ln, err := srv.listen()
	if err != nil {
		t.Fatalf("listen with fallback: %v", err)
	}
	defer ln.Close()
	got := ln.Addr().(*net.TCPAddr).Port
	if got == busyPort || got > busyPort+maxPortAttempts-1 {
		t.Fatalf("expected a port after %d, got %d", busyPort, got)
	}
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	free, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := free.Addr().(*net.TCPAddr).Port
	_ = free.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := testConfig()
	cfg.Server.Port = port
	srv, err := New(Options{
		Config:    cfg,
		Resolver:  resolver.NewResolver(&stubBackend{}, nil, log),
		Converter: &stubConverter{},
		Logger:    log,
		Fs:        afero.NewMemMapFs(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("server did not become ready in time")
		}
		resp, err := client.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("server error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for server shutdown")
	}
}
