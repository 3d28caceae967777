package web

import (
	"html/template"
	"net/http"
)

type placeholderPage struct {
	VideoID  string
	Format   string
	WatchURL string
}

var placeholderTemplate = template.Must(template.New("placeholder").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>FreeYTZone Download Information</title>
  <style>
    body { font-family: system-ui, sans-serif; background: #121212; color: #eee; display: flex; justify-content: center; padding: 3rem 1rem; }
    main { max-width: 36rem; background: #1e1e1e; border-radius: 8px; padding: 2rem; }
    a.button { display: inline-block; margin-top: 1rem; padding: .6rem 1.2rem; background: #e62117; color: #fff; border-radius: 4px; text-decoration: none; }
    code { color: #9cdcfe; }
  </style>
</head>
<body>
  <main>
    <h1>FreeYTZone Download Information</h1>
    <p>Downloads are not served by this deployment.</p>
    <p>Video ID: <code>{{.VideoID}}</code></p>
    <p>Requested format: <code>{{.Format}}</code></p>
    <p>You can watch the video at <a href="{{.WatchURL}}">{{.WatchURL}}</a>.</p>
    <a class="button" href="{{.WatchURL}}">Go to YouTube</a>
  </main>
</body>
</html>
`))

func renderPlaceholder(w http.ResponseWriter, page placeholderPage) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return placeholderTemplate.Execute(w, page)
}
