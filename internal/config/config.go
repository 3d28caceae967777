// Package config loads service settings from .env, an optional TOML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lvcoi/freeytzone/internal/resolver"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "FREEYTZONE"
	configName = "freeytzone"
	dotEnvFile = ".env"
)

// EnvKeyReplacer maps configuration keys onto environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

type ServerConfig struct {
	Addr        string
	Port        int
	Debug       bool
	CORSOrigins []string
}

type ResolverConfig struct {
	Backend  string
	Fallback string
}

type YtDlpConfig struct {
	Path       string
	InstallDir string
}

type YouTubeConfig struct {
	APIKey     string
	APIBaseURL string
}

type ScrapeConfig struct {
	BaseURL    string
	BrowserTLS bool
}

type LogsConfig struct {
	Dir   string
	Level string
	JSON  bool
}

// Config is the typed view of every setting.
type Config struct {
	Server       ServerConfig
	Resolver     ResolverConfig
	YtDlp        YtDlpConfig
	YouTube      YouTubeConfig
	HTTPTimeout  time.Duration
	DownloadMode string
	Scrape       ScrapeConfig
	Logs         LogsConfig
	Demo         bool
	// ConfigFile is the TOML file that was read, empty when none was found.
	ConfigFile string
}

// ListenAddr joins host and port for net.Listen.
func (c Config) ListenAddr(port int) string {
	return fmt.Sprintf("%s:%d", c.Server.Addr, port)
}

// Load reads .env (when present), then the optional config file, then
// the environment. Later sources win.
func Load(fs afero.Fs) (Config, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := loadDotEnv(fs, dotEnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("toml")
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	v.MustBindEnv(KeyServerPort, envPrefix+"_SERVER_PORT", EnvPort)
	v.MustBindEnv(KeyYouTubeAPIKey, envPrefix+"_YOUTUBE_API_KEY", EnvAPIKey)
	v.MustBindEnv(KeyDemo, envPrefix+"_DEMO", EnvSkipYtDlp)

	v.SetTypeByDefaultValue(true)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (Config, error) {
	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString(KeyHTTPTimeout)))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPTimeout, err)
	}

	cfg := Config{
		Server: ServerConfig{
			Addr:        strings.TrimSpace(v.GetString(KeyServerAddr)),
			Port:        v.GetInt(KeyServerPort),
			Debug:       v.GetBool(KeyServerDebug),
			CORSOrigins: splitList(v.GetStringSlice(KeyServerCORSOrigins)),
		},
		Resolver: ResolverConfig{
			Backend:  normalizeName(v.GetString(KeyResolverBackend)),
			Fallback: normalizeName(v.GetString(KeyResolverFallback)),
		},
		YtDlp: YtDlpConfig{
			Path:       strings.TrimSpace(v.GetString(KeyYtDlpPath)),
			InstallDir: strings.TrimSpace(v.GetString(KeyYtDlpInstallDir)),
		},
		YouTube: YouTubeConfig{
			APIKey:     strings.TrimSpace(v.GetString(KeyYouTubeAPIKey)),
			APIBaseURL: strings.TrimSpace(v.GetString(KeyYouTubeAPIBaseURL)),
		},
		HTTPTimeout:  timeout,
		DownloadMode: normalizeName(v.GetString(KeyDownloadMode)),
		Scrape: ScrapeConfig{
			BaseURL:    strings.TrimSpace(v.GetString(KeyScrapeBaseURL)),
			BrowserTLS: v.GetBool(KeyScrapeBrowserTLS),
		},
		Logs: LogsConfig{
			Dir:   strings.TrimSpace(v.GetString(KeyLogsDir)),
			Level: normalizeName(v.GetString(KeyLogsLevel)),
			JSON:  v.GetBool(KeyLogsJSON),
		},
		Demo:       v.GetBool(KeyDemo),
		ConfigFile: v.ConfigFileUsed(),
	}
	if cfg.Resolver.Fallback == "none" {
		cfg.Resolver.Fallback = ""
	}
	if cfg.Demo {
		cfg.Resolver.Backend = resolver.BackendDemo
		cfg.Resolver.Fallback = ""
		cfg.DownloadMode = DownloadPlaceholder
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	backends := resolver.Names()
	if !lo.Contains(backends, c.Resolver.Backend) {
		return fmt.Errorf("invalid %s %q (expected one of %s)", KeyResolverBackend, c.Resolver.Backend, strings.Join(backends, ", "))
	}
	if c.Resolver.Fallback != "" && !lo.Contains(backends, c.Resolver.Fallback) {
		return fmt.Errorf("invalid %s %q (expected one of %s, or empty)", KeyResolverFallback, c.Resolver.Fallback, strings.Join(backends, ", "))
	}
	if c.DownloadMode != DownloadRedirect && c.DownloadMode != DownloadPlaceholder {
		return fmt.Errorf("invalid %s %q (expected %s or %s)", KeyDownloadMode, c.DownloadMode, DownloadRedirect, DownloadPlaceholder)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid %s %d", KeyServerPort, c.Server.Port)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid %s %s: must be positive", KeyHTTPTimeout, c.HTTPTimeout)
	}
	return nil
}

// loadDotEnv exports variables from path without overriding anything
// already set in the environment. A missing file is not an error.
func loadDotEnv(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	values, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for key, value := range values {
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("exporting %s: %w", key, err)
		}
	}
	return nil
}

// splitList accepts both TOML arrays and comma-separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return lo.Uniq(out)
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
