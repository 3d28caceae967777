package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/lvcoi/freeytzone/internal/config"
	"github.com/lvcoi/freeytzone/internal/scrape"
	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

//go:embed assets/*
var embeddedAssets embed.FS

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// maxPortAttempts bounds how many consecutive ports are tried when the
// configured one is busy.
const maxPortAttempts = 10

// MetadataResolver is what the handlers need from the resolver.
type MetadataResolver interface {
	Resolve(ctx context.Context, rawURL string) (video.Metadata, error)
	Status(ctx context.Context) map[string]string
}

// Options wires a Server.
type Options struct {
	Config    config.Config
	Resolver  MetadataResolver
	Converter scrape.Converter
	Logger    *logrus.Logger
	LogPath   string
	Fs        afero.Fs
}

// Server serves the JSON API, the download endpoint and the embedded
// front end.
type Server struct {
	cfg       config.Config
	resolver  MetadataResolver
	converter scrape.Converter
	log       *logrus.Logger
	logPath   string
	fs        afero.Fs
	assets    fs.FS
	startedAt time.Time
}

func New(opts Options) (*Server, error) {
	if opts.Resolver == nil {
		return nil, errors.New("web: resolver is required")
	}
	if opts.Converter == nil {
		return nil, errors.New("web: converter is required")
	}
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	filesystem := opts.Fs
	if filesystem == nil {
		filesystem = afero.NewOsFs()
	}
	return &Server{
		cfg:       opts.Config,
		resolver:  opts.Resolver,
		converter: opts.Converter,
		log:       log,
		logPath:   opts.LogPath,
		fs:        filesystem,
		assets:    assets,
		startedAt: time.Now(),
	}, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/video-info", s.handleVideoInfo).Methods(http.MethodPost)
	api.HandleFunc("/fetch-y2meta-download-link", s.handleFetchLink).Methods(http.MethodPost)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)

	r.HandleFunc("/download", s.handleDownload).Methods(http.MethodGet)
	r.HandleFunc("/debug", s.handleDebug).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.PathPrefix("/").MatcherFunc(notAPI).HandlerFunc(s.handleStatic).Methods(http.MethodGet, http.MethodHead)

	return s.middleware(r)
}

func notAPI(r *http.Request, _ *mux.RouteMatch) bool {
	return r.URL.Path != "/api" && !strings.HasPrefix(r.URL.Path, "/api/")
}

// ListenAndServe binds the configured port, moving to the next one while it
// is in use, and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	s.log.WithFields(logrus.Fields{
		"addr":     ln.Addr().String(),
		"backend":  s.cfg.Resolver.Backend,
		"fallback": s.cfg.Resolver.Fallback,
		"log_file": s.logPath,
	}).Info("server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) listen() (net.Listener, error) {
	port := s.cfg.Server.Port
	var lastErr error
	for attempt := 0; attempt < maxPortAttempts && port+attempt <= 65535; attempt++ {
		candidate := port + attempt
		ln, err := net.Listen("tcp", s.cfg.ListenAddr(candidate))
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on port %d: %w", candidate, err)
		}
		s.log.WithField("port", candidate).Warn("port in use, trying the next one")
		lastErr = err
	}
	return nil, fmt.Errorf("no free port in %d..%d: %w", port, port+maxPortAttempts-1, lastErr)
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

// decodeJSONBody fills dst from a JSON or form-encoded body. Unknown fields
// are ignored; form values map onto the same keys as the JSON tags.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(dst); err != nil {
			return bodyError(err, "invalid JSON payload")
		}
		if err := dec.Decode(new(struct{})); err != io.EOF {
			return &requestError{http.StatusBadRequest, "invalid JSON payload"}
		}
		return nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return bodyError(err, "invalid form payload")
		}
		fields := make(map[string]string, len(r.PostForm))
		for key := range r.PostForm {
			fields[key] = r.PostForm.Get(key)
		}
		encoded, err := json.Marshal(fields)
		if err != nil {
			return &requestError{http.StatusBadRequest, "invalid form payload"}
		}
		if err := json.Unmarshal(encoded, dst); err != nil {
			return &requestError{http.StatusBadRequest, "invalid form payload"}
		}
		return nil
	}
	return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
}

func bodyError(err error, message string) *requestError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
	}
	return &requestError{http.StatusBadRequest, message}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if !notAPI(r, nil) {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		serveIndex(w, s.assets)
		return
	}
	if fileExists(s.assets, strings.TrimPrefix(r.URL.Path, "/")) {
		http.FileServer(http.FS(s.assets)).ServeHTTP(w, r)
		return
	}
	serveIndex(w, s.assets)
}

func serveIndex(w http.ResponseWriter, assets fs.FS) {
	data, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		http.Error(w, "missing index", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func fileExists(assets fs.FS, name string) bool {
	if name == "" {
		return false
	}
	info, err := fs.Stat(assets, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
