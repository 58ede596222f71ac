package view

import (
	"bytes"
	"html/template"
)

// StatusPageData provides the dynamic fields of a non-redirect response page.
type StatusPageData struct {
	Title   string
	Heading string
	Message string
	Code    string
}

var (
	NotFoundPage = StatusPageData{
		Title:   "Link not found",
		Heading: "404 - Link Not Found",
		Message: "This link may have expired or been deleted.",
	}
	DisabledPage = StatusPageData{
		Title:   "Link disabled",
		Heading: "Link Disabled",
		Message: "This link has been disabled by the owner.",
	}
	NotYetActivePage = StatusPageData{
		Title:   "Link not active yet",
		Heading: "Link Not Active Yet",
		Message: "This link is scheduled and is not available yet. Please check back later.",
	}
	ExpiredPage = StatusPageData{
		Title:   "Link expired",
		Heading: "Link Expired",
	}
)

var statusPageTmpl = template.Must(template.New("status_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<meta name="robots" content="noindex" />
	<title>{{.Title}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(520px, 92vw);
			text-align: center;
		}
		h1 { font-size: 1.6rem; margin-bottom: 8px; }
		p { color: var(--muted); margin-top: 0; }
		a { color: var(--accent); }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Heading}}</h1>
		<p>{{.Message}}</p>
		{{if .Code}}<p><small>/{{.Code}}</small></p>{{end}}
		<p><a href="/">Go to homepage</a></p>
	</div>
</body>
</html>
`))

// RenderStatusPage expands the status page template with the provided data.
func RenderStatusPage(data StatusPageData) (string, error) {
	if data.Title == "" {
		data.Title = data.Heading
	}
	var buf bytes.Buffer
	if err := statusPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
