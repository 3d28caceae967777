package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/sirupsen/logrus"
)

// Steps of the conversion flow, reported on failure.
const (
	StepFetchPage    = "fetch-page"
	StepVideoToken   = "video-token"
	StepQualityToken = "quality-token"
	StepConvert      = "convert"
	StepLink         = "link"
)

const (
	DefaultBaseURL = "https://y2meta.net"
	pagePath       = "/en-us3/"
	convertPath    = "/en-us3/api/ajaxConvert"
	scrapeAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.102 Safari/537.36"
	maxPageBytes   = 5 << 20
	fallbackTitle  = "video"
)

// Link is a direct download URL obtained from a converter site.
type Link struct {
	DownloadLink string `json:"downloadLink"`
	VideoTitle   string `json:"videoTitle"`
}

// Converter obtains a direct download link for a YouTube URL.
type Converter interface {
	FetchLink(ctx context.Context, youtubeURL string) (Link, error)
}

var videoTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)data-id="([a-zA-Z0-9_-]+)"`),
	regexp.MustCompile(`(?i)"vid"\s*:\s*"([a-zA-Z0-9_-]+)"`),
	regexp.MustCompile(`(?i)value="([a-zA-Z0-9_-]{11,})" name="vid"`),
	regexp.MustCompile(`(?i)_id\s*=\s*'([a-zA-Z0-9_-]+)';`),
}

var (
	mp4SectionPattern = regexp.MustCompile(`(?i)<div id="mp4"[^>]*>[\s\S]*?</div>`)
	qualityPatterns   = []*regexp.Regexp{
		qualityPattern("1080p"),
		qualityPattern("720p"),
	}
	titleBoilerplate = regexp.MustCompile(`(?i)Y2Meta - Free YouTube Downloader|YouTube Downloader -|- y2meta.net|Download YouTube video as MP4 and MP3`)
)

func qualityPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<td.*?>\s*` + label + `\s*.*?<span class="badge.*?">mp4</span>.*?</td>[\s\S]*?data-k="([^"\s]+)"`)
}

var stepMessages = map[string]string{
	StepFetchPage:    "Failed to fetch the y2meta page.",
	StepVideoToken:   "Failed to parse video ID from y2meta page. The page structure may have changed.",
	StepQualityToken: "Could not find 1080p/720p MP4 download option on y2meta. The page content might have changed.",
	StepConvert:      "Failed to convert video on y2meta (step 2).",
	StepLink:         "Could not extract direct download link from y2meta (step 2).",
}

func stepError(step, message string, err error) *video.Error {
	if message == "" {
		message = stepMessages[step]
	}
	return &video.Error{
		Kind:     video.KindScrapeFailed,
		Category: video.CategoryGeneric,
		Backend:  "y2meta",
		Step:     step,
		Message:  message,
		Err:      err,
	}
}

// Y2Meta drives the y2meta.net two-step convert flow.
type Y2Meta struct {
	client  *http.Client
	baseURL string
	log     logrus.FieldLogger
}

// NewY2Meta builds a converter against baseURL (DefaultBaseURL when empty).
func NewY2Meta(client *http.Client, baseURL string, log logrus.FieldLogger) *Y2Meta {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Y2Meta{client: client, baseURL: baseURL, log: log}
}

func (y *Y2Meta) pageURL(youtubeURL string) string {
	return y.baseURL + pagePath + "?url=" + url.QueryEscape(youtubeURL)
}

// FetchLink runs the flow once: fetch the page, pick the 1080p (else 720p)
// mp4 token, ask for conversion and return the link as given.
func (y *Y2Meta) FetchLink(ctx context.Context, youtubeURL string) (Link, error) {
	client := sessionClient(y.client)
	pageURL := y.pageURL(youtubeURL)
	log := y.log.WithField("youtube_url", youtubeURL)

	log.WithField("page", pageURL).Debug("fetching converter page")
	page, err := y.fetchPage(ctx, client, pageURL)
	if err != nil {
		return Link{}, err
	}
	log.WithField("snippet", snippet(page, 1000)).Debug("converter page fetched")

	vid, ok := extractVideoToken(page)
	if !ok {
		return Link{}, stepError(StepVideoToken, "", fmt.Errorf("no video token in %d bytes of html", len(page)))
	}
	title := extractTitle(page)

	key, ok := extractQualityToken(page)
	if !ok {
		return Link{}, stepError(StepQualityToken, "", errors.New("no 1080p or 720p mp4 token"))
	}
	log.WithFields(logrus.Fields{"vid": vid, "k": key}).Debug("requesting conversion")

	result, err := y.convert(ctx, client, pageURL, vid, key)
	if err != nil {
		return Link{}, err
	}

	link, ok := extractLink(result)
	if !ok {
		return Link{}, stepError(StepLink, "", fmt.Errorf("no link in convert response: %s", snippet(result.String(), 100)))
	}
	log.WithField("title", title).Info("converter link obtained")
	return Link{DownloadLink: link, VideoTitle: title}, nil
}

func (y *Y2Meta) fetchPage(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", stepError(StepFetchPage, "", err)
	}
	req.Header.Set("User-Agent", scrapeAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", stepError(StepFetchPage, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", stepError(StepFetchPage, fmt.Sprintf("%s Status: %d", stepMessages[StepFetchPage], resp.StatusCode),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", stepError(StepFetchPage, "", err)
	}
	return string(body), nil
}

func (y *Y2Meta) convert(ctx context.Context, client *http.Client, pageURL, vid, key string) (*gabs.Container, error) {
	form := url.Values{}
	form.Set("vid", vid)
	form.Set("k", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.baseURL+convertPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, stepError(StepConvert, "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", scrapeAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Origin", y.baseURL)
	req.Header.Set("Referer", pageURL)

	resp, err := client.Do(req)
	if err != nil {
		return nil, stepError(StepConvert, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, stepError(StepConvert, "", err)
	}
	failed := fmt.Sprintf("%s Status: N/A", stepMessages[StepConvert])
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return nil, stepError(StepConvert, failed,
			fmt.Errorf("non-json response (Content-Type: %s): %s", ct, snippet(string(body), 200)))
	}
	doc, err := gabs.ParseJSON(body)
	if err != nil {
		return nil, stepError(StepConvert, failed, fmt.Errorf("decoding convert response: %w", err))
	}
	status, _ := doc.S("status").Data().(string)
	if status != "ok" && status != "success" {
		if status == "" {
			status = "N/A"
		}
		return nil, stepError(StepConvert, fmt.Sprintf("%s Status: %s", stepMessages[StepConvert], status),
			fmt.Errorf("convert status %q: %s", status, snippet(string(body), 200)))
	}
	return doc, nil
}

func extractVideoToken(page string) (string, bool) {
	for _, pattern := range videoTokenPatterns {
		if m := pattern.FindStringSubmatch(page); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

func extractQualityToken(page string) (string, bool) {
	section := mp4SectionPattern.FindString(page)
	if section == "" {
		return "", false
	}
	for _, pattern := range qualityPatterns {
		if m := pattern.FindStringSubmatch(section); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

func extractTitle(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return fallbackTitle
	}
	raw := strings.TrimSpace(doc.Find("h5.card-title").First().Text())
	if raw == "" {
		raw = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if raw == "" {
		return fallbackTitle
	}
	title := strings.TrimSpace(titleBoilerplate.ReplaceAllString(raw, ""))
	if title == "" || strings.Contains(strings.ToLower(title), "youtube downloader") {
		return fallbackTitle
	}
	return title
}

// extractLink prefers the "link" field and falls back to the first href in
// the "result" HTML fragment.
func extractLink(doc *gabs.Container) (string, bool) {
	if link, ok := doc.S("link").Data().(string); ok && strings.TrimSpace(link) != "" {
		return link, true
	}
	fragment, ok := doc.S("result").Data().(string)
	if !ok || fragment == "" {
		return "", false
	}
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", false
	}
	href, ok := frag.Find("[href]").First().Attr("href")
	if !ok || href == "" {
		return "", false
	}
	return href, true
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
