package utils

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const (
	BodyFormatHTML     = "html"
	BodyFormatMarkdown = "markdown"
)

// BodyRenderer turns an authored post body into the sanitized HTML that is
// stored and scanned for media.
type BodyRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewBodyRenderer() *BodyRenderer {
	md := goldmark.New(
		goldmark.WithRendererOptions(html.WithUnsafe()),
		goldmark.WithExtensions(extension.GFM),
	)

	p := bluemonday.UGCPolicy()
	p.AllowElements("video", "source")
	p.AllowAttrs("src", "poster").OnElements("video")
	p.AllowAttrs("controls", "loop", "muted", "playsinline", "width", "height").OnElements("video")
	p.AllowAttrs("src", "type").OnElements("source")
	p.RequireNoFollowOnLinks(false)
	p.AllowRelativeURLs(true)

	return &BodyRenderer{md: md, policy: p}
}

// Render converts body in the given format ("html" or "markdown", empty
// means html) to sanitized HTML.
func (r *BodyRenderer) Render(format, body string) (string, error) {
	switch format {
	case "", BodyFormatHTML:
		return r.policy.Sanitize(body), nil
	case BodyFormatMarkdown:
		var buf bytes.Buffer
		if err := r.md.Convert([]byte(body), &buf); err != nil {
			return "", fmt.Errorf("failed to render markdown: %w", err)
		}
		return r.policy.Sanitize(strings.TrimSpace(buf.String())), nil
	default:
		return "", fmt.Errorf("unsupported body format %q", format)
	}
}
