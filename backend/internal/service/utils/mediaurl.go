package utils

import (
	"html"
	"regexp"
	"strings"

	"github.com/blogmedia/blogmedia/shared/domain"
)

// A tag matches only when it is closed with '>'. The attribute must be
// preceded by whitespace so data-src or xhref do not count.
var (
	imgSrcRe    = regexp.MustCompile(`(?is)<img\b[^>]*?\ssrc\s*=\s*(?:"([^"]*)"|'([^']*)')[^>]*>`)
	videoSrcRe  = regexp.MustCompile(`(?is)<video\b[^>]*?\ssrc\s*=\s*(?:"([^"]*)"|'([^']*)')[^>]*>`)
	sourceSrcRe = regexp.MustCompile(`(?is)<source\b[^>]*?\ssrc\s*=\s*(?:"([^"]*)"|'([^']*)')[^>]*>`)
	anchorRe    = regexp.MustCompile(`(?is)<a\b[^>]*?\shref\s*=\s*(?:"([^"]*)"|'([^']*)')[^>]*>`)
)

var documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt"}

// ExtractMediaURLs scans an HTML fragment for referenced media.
//
// IMAGE holds img sources, VIDEO holds video sources followed by source
// element sources, DOCUMENT holds anchor targets that look like documents.
// URLs keep document order and duplicates. The result always has all three
// keys, each with a non-nil slice.
func ExtractMediaURLs(html string) domain.MediaURLs {
	result := domain.MediaURLs{
		domain.CategoryImage:    findAttr(imgSrcRe, html),
		domain.CategoryVideo:    append(findAttr(videoSrcRe, html), findAttr(sourceSrcRe, html)...),
		domain.CategoryDocument: []string{},
	}
	for _, href := range findAttr(anchorRe, html) {
		if IsDocumentURL(href) {
			result[domain.CategoryDocument] = append(result[domain.CategoryDocument], href)
		}
	}
	return result
}

// IsDocumentURL reports whether a link target points at a document upload.
func IsDocumentURL(url string) bool {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "/documents/") {
		return true
	}
	for _, ext := range documentExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func findAttr(re *regexp.Regexp, fragment string) []string {
	urls := []string{}
	for _, m := range re.FindAllStringSubmatch(fragment, -1) {
		// exactly one of the quote-style groups participates
		value := m[1]
		if value == "" {
			value = m[2]
		}
		// attribute values are stored entity-encoded by the editor
		value = strings.TrimSpace(html.UnescapeString(value))
		if value != "" {
			urls = append(urls, value)
		}
	}
	return urls
}
