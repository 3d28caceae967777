package web

import (
	"net/http"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/lvcoi/freeytzone/internal/config"
	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	msgInvalidURL       = "Invalid YouTube URL"
	msgVideoInfoFailed  = "Error getting video information"
	msgURLRequired      = "URL parameter is required"
	msgYoutubeURLNeeded = "youtubeUrl is required"
	defaultFormat       = "mp4"
)

var formatPattern = regexp.MustCompile(`^[a-z0-9]{2,5}$`)

// debugEnvVars are echoed by /debug when set.
var debugEnvVars = []string{"PORT", "RENDER", config.EnvSkipYtDlp, config.EnvConfigPath}

type videoInfoRequest struct {
	URL string `json:"url"`
}

type videoInfoResponse struct {
	Success bool            `json:"success"`
	Data    *video.Metadata `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req videoInfoRequest
	if rerr := decodeJSONBody(w, r, &req); rerr != nil {
		writeJSON(w, rerr.status, videoInfoResponse{Message: rerr.message})
		return
	}

	log := s.requestLog(r).WithField("url", req.URL)
	log.Info("received request for URL")

	meta, err := s.resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		if video.KindOf(err) == video.KindInvalidURL {
			log.Warn("rejected invalid YouTube URL")
			writeJSON(w, http.StatusBadRequest, videoInfoResponse{Message: msgInvalidURL})
			return
		}
		log.WithError(err).WithFields(logrus.Fields{
			"kind":     video.KindOf(err),
			"category": video.CategoryOf(err),
		}).Error("video info failed")
		writeJSON(w, video.HTTPStatus(err), videoInfoResponse{
			Message: msgVideoInfoFailed,
			Error:   video.UserMessage(err),
		})
		return
	}

	log.WithFields(logrus.Fields{
		"video_id":    meta.VideoID,
		"backend":     meta.Backend,
		"max_quality": meta.MaxQuality,
	}).Info("video info resolved")
	writeJSON(w, http.StatusOK, videoInfoResponse{Success: true, Data: &meta})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeJSONError(w, http.StatusBadRequest, msgURLRequired)
		return
	}
	ref, err := video.ParseReference(rawURL)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, msgInvalidURL)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = defaultFormat
	}
	if !formatPattern.MatchString(format) {
		writeJSONError(w, http.StatusBadRequest, "Unsupported format")
		return
	}

	log := s.requestLog(r).WithFields(logrus.Fields{
		"video_id": ref.ID,
		"format":   format,
		"mode":     s.cfg.DownloadMode,
	})

	if s.cfg.DownloadMode == config.DownloadPlaceholder {
		log.Info("serving download placeholder")
		if err := renderPlaceholder(w, placeholderPage{VideoID: ref.ID, Format: format, WatchURL: ref.WatchURL()}); err != nil {
			log.WithError(err).Error("rendering placeholder")
		}
		return
	}

	log.Info("redirecting download")
	w.Header().Set("Content-Disposition", `attachment; filename="youtube-`+ref.ID+"."+format+`"`)
	if format == "mp3" {
		w.Header().Set("Content-Type", "audio/mpeg")
	} else {
		w.Header().Set("Content-Type", "video/mp4")
	}
	http.Redirect(w, r, ref.WatchURL(), http.StatusFound)
}

type fetchLinkRequest struct {
	YoutubeURL string `json:"youtubeUrl"`
}

func (s *Server) handleFetchLink(w http.ResponseWriter, r *http.Request) {
	var req fetchLinkRequest
	if rerr := decodeJSONBody(w, r, &req); rerr != nil {
		writeJSONError(w, rerr.status, rerr.message)
		return
	}
	youtubeURL := video.CleanInput(req.YoutubeURL)
	if youtubeURL == "" {
		writeJSONError(w, http.StatusBadRequest, msgYoutubeURLNeeded)
		return
	}
	if !video.IsYouTubeHost(youtubeURL) {
		writeJSONError(w, http.StatusBadRequest, msgInvalidURL)
		return
	}

	log := s.requestLog(r).WithField("url", youtubeURL)
	link, err := s.converter.FetchLink(r.Context(), youtubeURL)
	if err != nil {
		log.WithError(err).Error("direct link lookup failed")
		writeJSONError(w, http.StatusInternalServerError, video.UserMessage(err))
		return
	}
	log.WithField("title", link.VideoTitle).Info("direct link resolved")
	writeJSON(w, http.StatusOK, link)
}

type configResponse struct {
	YoutubeAPIKey string `json:"youtubeApiKey"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	key := s.cfg.YouTube.APIKey
	s.requestLog(r).WithFields(logrus.Fields{
		"key_present": key != "",
		"key_length":  len(key),
	}).Info("client configuration requested")
	writeJSON(w, http.StatusOK, configResponse{YoutubeAPIKey: key})
}

type healthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Uptime: s.uptime()})
}

type memoryUsage struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
}

type debugConfig struct {
	Backend      string `json:"backend"`
	Fallback     string `json:"fallback"`
	DownloadMode string `json:"downloadMode"`
	ConfigFile   string `json:"configFile"`
	Demo         bool   `json:"demo"`
}

type debugResponse struct {
	GoVersion       string            `json:"goVersion"`
	Platform        string            `json:"platform"`
	MemoryUsage     memoryUsage       `json:"memoryUsage"`
	Uptime          float64           `json:"uptime"`
	CurrentDir      string            `json:"currentDir"`
	LogsPath        string            `json:"logsPath"`
	EnvironmentVars map[string]string `json:"environmentVars"`
	Config          debugConfig       `json:"config"`
	BackendStatus   map[string]string `json:"backendStatus"`
	DirectoryList   []string          `json:"directoryListing"`
	DirectoryError  string            `json:"directoryError,omitempty"`
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.Debug {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	cwd, _ := os.Getwd()

	env := lo.Associate(
		lo.Filter(debugEnvVars, func(key string, _ int) bool { return os.Getenv(key) != "" }),
		func(key string) (string, string) { return key, os.Getenv(key) },
	)

	resp := debugResponse{
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		MemoryUsage: memoryUsage{
			Alloc:      stats.Alloc,
			TotalAlloc: stats.TotalAlloc,
			Sys:        stats.Sys,
			HeapInuse:  stats.HeapInuse,
			NumGC:      stats.NumGC,
		},
		Uptime:          s.uptime(),
		CurrentDir:      cwd,
		LogsPath:        s.logPath,
		EnvironmentVars: env,
		Config: debugConfig{
			Backend:      s.cfg.Resolver.Backend,
			Fallback:     s.cfg.Resolver.Fallback,
			DownloadMode: s.cfg.DownloadMode,
			ConfigFile:   s.cfg.ConfigFile,
			Demo:         s.cfg.Demo,
		},
		BackendStatus: s.resolver.Status(r.Context()),
	}

	entries, err := afero.ReadDir(s.fs, ".")
	if err != nil {
		resp.DirectoryError = err.Error()
	} else {
		resp.DirectoryList = lo.Map(entries, func(e os.FileInfo, _ int) string {
			if e.IsDir() {
				return e.Name() + "/"
			}
			return e.Name()
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) uptime() float64 {
	return time.Since(s.startedAt).Seconds()
}
