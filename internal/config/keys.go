package config

// Configuration keys. Environment variables use the FREEYTZONE_ prefix with
// dots replaced by underscores, e.g. FREEYTZONE_RESOLVER_BACKEND.
const (
	KeyServerAddr        = "server.addr"
	KeyServerPort        = "server.port"
	KeyServerDebug       = "server.debug"
	KeyServerCORSOrigins = "server.cors_origins"

	KeyResolverBackend  = "resolver.backend"
	KeyResolverFallback = "resolver.fallback"

	KeyYtDlpPath       = "ytdlp.path"
	KeyYtDlpInstallDir = "ytdlp.install_dir"

	KeyYouTubeAPIKey     = "youtube.api_key"
	KeyYouTubeAPIBaseURL = "youtube.api_base_url"

	KeyHTTPTimeout = "http.timeout"

	KeyDownloadMode = "download.mode"

	KeyScrapeBaseURL    = "scrape.base_url"
	KeyScrapeBrowserTLS = "scrape.browser_tls"

	KeyLogsDir   = "logs.dir"
	KeyLogsLevel = "logs.level"
	KeyLogsJSON  = "logs.json"

	KeyDemo = "demo"
)

// Unprefixed environment variable names still honoured.
const (
	EnvPort       = "PORT"
	EnvAPIKey     = "YOUTUBE_API_KEY"
	EnvSkipYtDlp  = "SKIP_YTDLP"
	EnvConfigPath = "FREEYTZONE_CONFIG_PATH"
)

// Download modes.
const (
	DownloadRedirect    = "redirect"
	DownloadPlaceholder = "placeholder"
)

var defaults = map[string]any{
	KeyServerAddr:        "",
	KeyServerPort:        3000,
	KeyServerDebug:       true,
	KeyServerCORSOrigins: []string{"*"},

	KeyResolverBackend:  "cli",
	KeyResolverFallback: "library",

	KeyYtDlpPath:       "yt-dlp",
	KeyYtDlpInstallDir: "bin",

	KeyYouTubeAPIKey:     "",
	KeyYouTubeAPIBaseURL: "https://www.googleapis.com/youtube/v3",

	KeyHTTPTimeout: "30s",

	KeyDownloadMode: DownloadRedirect,

	KeyScrapeBaseURL:    "https://y2meta.net",
	KeyScrapeBrowserTLS: false,

	KeyLogsDir:   "logs",
	KeyLogsLevel: "info",
	KeyLogsJSON:  false,

	KeyDemo: false,
}
