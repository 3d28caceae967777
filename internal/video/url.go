package video

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var youtubeURLRegex = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?(?:youtube\.com/(?:watch\?v=|embed/|shorts/|short/|v/)|youtu\.be/)([A-Za-z0-9_-]{11})(?:[&?#].*)?$`)

// Reference identifies one YouTube video for the duration of a request.
type Reference struct {
	ID  string
	URL string
}

// WatchURL returns the canonical watch page for the reference.
func (r Reference) WatchURL() string {
	return watchURLForID(r.ID)
}

// CleanInput trims whitespace and a single leading "@" (pasted handles and
// chat mentions often carry one).
func CleanInput(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@")
}

// ExtractID returns the 11-character video ID embedded in a YouTube URL.
func ExtractID(raw string) (string, bool) {
	match := youtubeURLRegex.FindStringSubmatch(CleanInput(raw))
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}

// IsShorts reports whether the URL points at a Shorts page.
func IsShorts(raw string) bool {
	return strings.Contains(raw, "/shorts/") || strings.Contains(raw, "/short/")
}

// ParseReference validates raw and builds a Reference from it.
func ParseReference(raw string) (Reference, error) {
	id, ok := ExtractID(raw)
	if !ok {
		return Reference{}, &Error{
			Kind:    KindInvalidURL,
			Message: "Invalid YouTube URL",
			Err:     fmt.Errorf("unrecognized YouTube URL %q", truncate(raw, 100)),
		}
	}
	return Reference{ID: id, URL: CleanInput(raw)}, nil
}

// normalizeHostname returns the lowercase hostname without "www." or port.
func normalizeHostname(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// IsYouTubeHost reports whether raw parses to a youtube.com or youtu.be host.
// It is looser than ExtractID and only used to reject obviously foreign
// links before they reach a third-party site.
func IsYouTubeHost(raw string) bool {
	cleaned := CleanInput(raw)
	if !strings.Contains(cleaned, "://") {
		cleaned = "https://" + cleaned
	}
	parsed, err := url.Parse(cleaned)
	if err != nil {
		return false
	}
	switch normalizeHostname(parsed) {
	case "youtube.com", "m.youtube.com", "youtu.be", "music.youtube.com":
		return true
	}
	return false
}

func watchURLForID(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + id
}

// ThumbnailURL returns the max-resolution still for a video ID.
func ThumbnailURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
}
