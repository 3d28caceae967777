package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lvcoi/freeytzone/internal/video"
)

const apiVideoResponse = `{
  "items": [{
    "id": "dQw4w9WgXcQ",
    "snippet": {
      "publishedAt": "2009-10-25T06:57:33Z",
      "title": "Never Gonna Give You Up",
      "channelTitle": "Rick Astley",
      "thumbnails": {
        "high": {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"},
        "maxres": {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg"}
      }
    },
    "contentDetails": {"duration": "PT3M33S", "definition": "hd"},
    "statistics": {"viewCount": "1500000000"}
  }]
}`

const apiQuotaResponse = `{
  "error": {
    "code": 403,
    "message": "The request cannot be completed because you have exceeded your quota.",
    "errors": [{"message": "quota", "domain": "youtube.quota", "reason": "quotaExceeded"}]
  }
}`

func newAPITestServer(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var seen http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = *r
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func TestAPIBackendResolve(t *testing.T) {
	server, seen := newAPITestServer(t, http.StatusOK, apiVideoResponse)
	backend := NewAPIBackend(NewHTTPClient(5*time.Second), server.URL, "test-key")

	ref := video.Reference{ID: "dQw4w9WgXcQ"}
	raw, err := backend.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.URL.Path != "/videos" {
		t.Fatalf("unexpected path %q", seen.URL.Path)
	}
	q := seen.URL.Query()
	if q.Get("id") != "dQw4w9WgXcQ" || q.Get("key") != "test-key" || q.Get("part") != "snippet,contentDetails,statistics" {
		t.Fatalf("unexpected query %v", q)
	}

	meta, err := video.Normalize(ref, backend.Name(), raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if meta.Title != "Never Gonna Give You Up" || meta.Uploader != "Rick Astley" {
		t.Fatalf("unexpected identity fields %+v", meta)
	}
	if meta.Duration != 213 || meta.ViewCount != 1500000000 || meta.UploadDate != "20091025" {
		t.Fatalf("unexpected counters %+v", meta)
	}
	if meta.Thumbnail != "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg" {
		t.Fatalf("expected maxres thumbnail, got %q", meta.Thumbnail)
	}
	if meta.MaxQuality != "HD" || meta.MaxHeight != 720 {
		t.Fatalf("unexpected quality %+v", meta)
	}
}

func TestAPIBackendQuotaError(t *testing.T) {
	server, _ := newAPITestServer(t, http.StatusForbidden, apiQuotaResponse)
	backend := NewAPIBackend(NewHTTPClient(5*time.Second), server.URL, "test-key")

	_, err := backend.Resolve(context.Background(), video.Reference{ID: "dQw4w9WgXcQ"})
	if err == nil {
		t.Fatal("expected error")
	}
	if video.KindOf(err) != video.KindUpstreamAPI || video.CategoryOf(err) != video.CategoryAPIKey {
		t.Fatalf("got %s/%s", video.KindOf(err), video.CategoryOf(err))
	}
	if !video.IsEnvironmental(err) {
		t.Fatal("a quota problem is a deployment failure and may fall back")
	}
	if video.HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", video.HTTPStatus(err))
	}
}

func TestAPIBackendEmptyItems(t *testing.T) {
	server, _ := newAPITestServer(t, http.StatusOK, `{"items": []}`)
	backend := NewAPIBackend(NewHTTPClient(5*time.Second), server.URL, "test-key")

	_, err := backend.Resolve(context.Background(), video.Reference{ID: "dQw4w9WgXcQ"})
	if video.CategoryOf(err) != video.CategoryVideoUnavailable {
		t.Fatalf("expected VideoUnavailable, got %v", err)
	}
}

func TestAPIBackendServerErrorIsUnavailable(t *testing.T) {
	server, _ := newAPITestServer(t, http.StatusServiceUnavailable, `backend down`)
	backend := NewAPIBackend(NewHTTPClient(5*time.Second), server.URL, "test-key")

	_, err := backend.Resolve(context.Background(), video.Reference{ID: "dQw4w9WgXcQ"})
	if video.KindOf(err) != video.KindBackendUnavailable {
		t.Fatalf("expected ResolutionBackendUnavailable, got %v", err)
	}
}

func TestAPIBackendWithoutKey(t *testing.T) {
	backend := NewAPIBackend(nil, "", "")
	_, err := backend.Resolve(context.Background(), video.Reference{ID: "dQw4w9WgXcQ"})
	if video.KindOf(err) != video.KindBackendUnavailable {
		t.Fatalf("expected ResolutionBackendUnavailable, got %v", err)
	}
	if _, err := backend.Check(context.Background()); err == nil {
		t.Fatal("expected check to fail without a key")
	}
}

func TestAPIDate(t *testing.T) {
	if got := apiDate("2009-10-25T06:57:33Z"); got != "20091025" {
		t.Fatalf("apiDate = %q", got)
	}
	if got := apiDate("yesterday"); got != "yesterday" {
		t.Fatalf("unparseable dates pass through, got %q", got)
	}
}
