package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/spf13/afero"
)

// Backend names accepted by configuration.
const (
	BackendCLI     = "cli"
	BackendBundled = "bundled"
	BackendLibrary = "library"
	BackendAPI     = "api"
	BackendDemo    = "demo"
)

// Backend obtains raw metadata for one video. Implementations must be safe
// for concurrent use and keep no per-request state.
type Backend interface {
	Name() string
	Resolve(ctx context.Context, ref video.Reference) (*video.Raw, error)
}

// Checker is implemented by backends that can report whether their tool or
// service is reachable.
type Checker interface {
	Check(ctx context.Context) (string, error)
}

// Options carries what the backend constructors need.
type Options struct {
	YtDlpPath     string
	InstallDir    string
	APIKey        string
	APIBaseURL    string
	HTTPTimeout   time.Duration
	Fs            afero.Fs
	HTTPClient    HTTPDoer
	LibraryClient YouTubeClient
}

type constructor func(Options) (Backend, error)

var constructors = map[string]constructor{
	BackendCLI:     func(o Options) (Backend, error) { return NewCLIBackend(o.YtDlpPath), nil },
	BackendBundled: func(o Options) (Backend, error) { return NewBundledBackend(o.Fs, o.InstallDir), nil },
	BackendLibrary: func(o Options) (Backend, error) { return NewLibraryBackend(o.LibraryClient, o.HTTPTimeout), nil },
	BackendAPI:     newAPIBackendFromOptions,
	BackendDemo:    func(Options) (Backend, error) { return DemoBackend{}, nil },
}

// Names lists every backend name in a stable order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend registered under name.
func New(name string, opts Options) (Backend, error) {
	build, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown resolver backend %q (expected one of %s)", name, strings.Join(Names(), ", "))
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return build(opts)
}

func newAPIBackendFromOptions(o Options) (Backend, error) {
	client := o.HTTPClient
	if client == nil {
		client = NewHTTPClient(o.HTTPTimeout)
	}
	return NewAPIBackend(client, o.APIBaseURL, o.APIKey), nil
}
