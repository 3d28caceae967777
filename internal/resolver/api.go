package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/lvcoi/freeytzone/internal/video"
)

const (
	defaultAPIBaseURL = "https://www.googleapis.com/youtube/v3"
	maxAPIBody        = 2 << 20
)

// The Data API reports only a coarse definition, not a format list, so
// the backend derives one representative format from it.
var apiDefinitions = map[string]video.StreamFormat{
	"hd": {ID: "api-hd", Height: 720, Width: 1280, Note: "HD"},
	"sd": {ID: "api-sd", Height: 480, Width: 854, Note: "SD"},
}

// APIBackend resolves metadata through the YouTube Data API v3.
type APIBackend struct {
	client  HTTPDoer
	baseURL string
	key     string
}

func NewAPIBackend(client HTTPDoer, baseURL, key string) *APIBackend {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &APIBackend{client: client, baseURL: baseURL, key: strings.TrimSpace(key)}
}

func (b *APIBackend) Name() string { return BackendAPI }

func (b *APIBackend) endpoint(id string) string {
	q := url.Values{}
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("id", id)
	q.Set("key", b.key)
	return b.baseURL + "/videos?" + q.Encode()
}

func (b *APIBackend) Resolve(ctx context.Context, ref video.Reference) (*video.Raw, error) {
	if b.key == "" {
		return nil, video.Unavailable(BackendAPI, errors.New("youtube.api_key is not configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint(ref.ID), nil)
	if err != nil {
		return nil, video.Unavailable(BackendAPI, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, video.Unavailable(BackendAPI, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBody))
	if err != nil {
		return nil, video.Unavailable(BackendAPI, fmt.Errorf("reading api response: %w", err))
	}
	doc, parseErr := gabs.ParseJSON(body)

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, doc, body)
	}
	if parseErr != nil {
		return nil, video.Classified(BackendAPI, "", fmt.Errorf("decoding api response: %w", parseErr))
	}

	items := doc.S("items").Children()
	if len(items) == 0 {
		return nil, video.Classified(BackendAPI, "This video is unavailable", fmt.Errorf("api returned no items for %s", ref.ID))
	}
	return rawFromAPI(items[0]), nil
}

// apiError maps a non-200 Data API response. Server-side failures count as
// the backend being unavailable; everything else is classified.
func apiError(status int, doc *gabs.Container, body []byte) error {
	var reason, message string
	if doc != nil {
		message, _ = doc.Path("error.message").Data().(string)
		if reasons := doc.Path("error.errors").Children(); len(reasons) > 0 {
			reason, _ = reasons[0].S("reason").Data().(string)
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	err := fmt.Errorf("youtube data api returned %d: %s", status, message)
	if status >= http.StatusInternalServerError {
		return video.Unavailable(BackendAPI, err)
	}
	c := video.ClassifyAPI(status, reason, message)
	return &video.Error{
		Kind:     video.KindUpstreamAPI,
		Category: c.Category,
		Backend:  BackendAPI,
		Message:  c.Message,
		Detail:   c.Excerpt,
		Err:      err,
	}
}

func rawFromAPI(item *gabs.Container) *video.Raw {
	raw := &video.Raw{
		Title:       stringAt(item, "snippet.title"),
		Channel:     stringAt(item, "snippet.channelTitle"),
		Thumbnail:   apiThumbnail(item),
		DurationISO: stringAt(item, "contentDetails.duration"),
		UploadDate:  apiDate(stringAt(item, "snippet.publishedAt")),
	}
	if views, err := strconv.ParseInt(stringAt(item, "statistics.viewCount"), 10, 64); err == nil {
		raw.ViewCount = views
	}
	definition := strings.ToLower(stringAt(item, "contentDetails.definition"))
	if f, ok := apiDefinitions[definition]; ok {
		raw.Formats = []video.StreamFormat{f}
	} else {
		raw.Formats = []video.StreamFormat{apiDefinitions["sd"]}
	}
	return raw
}

func stringAt(c *gabs.Container, path string) string {
	value, _ := c.Path(path).Data().(string)
	return strings.TrimSpace(value)
}

func apiThumbnail(item *gabs.Container) string {
	for _, size := range []string{"maxres", "standard", "high", "medium", "default"} {
		if u := stringAt(item, "snippet.thumbnails."+size+".url"); u != "" {
			return u
		}
	}
	return ""
}

// apiDate turns RFC 3339 publishedAt into the YYYYMMDD form yt-dlp uses.
func apiDate(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.UTC().Format("20060102")
}

func (b *APIBackend) Check(ctx context.Context) (string, error) {
	if b.key == "" {
		return "", errors.New("youtube.api_key is not configured")
	}
	return fmt.Sprintf("youtube data api at %s (key configured)", b.baseURL), nil
}
