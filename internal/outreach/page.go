package outreach

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/airrygarments/stylematch/internal/models"
)

const userAgent = "stylematch/1.0 (+https://airrygarments.com)"

// PageFetcher downloads a web page and reduces it to its visible text.
type PageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewPageFetcher returns a fetcher with the given request timeout and body size cap.
func NewPageFetcher(timeout time.Duration, maxBytes int64) *PageFetcher {
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	return &PageFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads rawURL and returns its text. HTML pages are stripped to visible text,
// PDFs are extracted page by page, and anything else is read as plain text. Bodies over the
// size cap are truncated.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid page URL %q", models.ErrInvalidArgument, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("failed to fetch %s: status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", u, err)
	}

	text, err := ExtractText(body, resp.Header.Get("Content-Type"), u.Path)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", u, err)
	}
	if text == "" {
		return "", fmt.Errorf("%s has no text content", u)
	}
	return text, nil
}

// ExtractText converts a response body to text based on its content type, falling back to
// the URL path extension when the content type is missing or generic.
func ExtractText(body []byte, contentType, urlPath string) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf" || (isGeneric(mediaType) && strings.EqualFold(path.Ext(urlPath), ".pdf")):
		return extractPDF(body)
	case strings.Contains(mediaType, "html"), isGeneric(mediaType) && looksLikeHTML(body):
		return extractHTML(body, contentType)
	default:
		return extractPlain(body), nil
	}
}

func isGeneric(mediaType string) bool {
	return mediaType == "" || mediaType == "application/octet-stream"
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html"))
}

// skipped elements never contribute visible text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Iframe:   true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Title: true, atom.Td: true, atom.Th: true, atom.Dd: true, atom.Dt: true,
}

// extractHTML decodes body to UTF-8 using the declared or sniffed charset and keeps the text
// outside skipped elements, one line per block element.
func extractHTML(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		r = bytes.NewReader(body)
	}
	z := html.NewTokenizer(r)
	var b strings.Builder
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return tidyLines(b.String()), nil
			}
			return "", fmt.Errorf("parse HTML: %w", z.Err())
		case html.StartTagToken:
			tok := z.Token()
			if skipped[tok.DataAtom] {
				depth++
			} else if blocks[tok.DataAtom] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			tok := z.Token()
			if skipped[tok.DataAtom] {
				if depth > 0 {
					depth--
				}
			} else if blocks[tok.DataAtom] {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			if z.Token().DataAtom == atom.Br {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}
	return tidyLines(buf.String()), nil
}

func extractPlain(content []byte) string {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "\ufffd"))
	}
	return tidyLines(string(content))
}

// tidyLines collapses runs of whitespace inside each line and drops blank lines.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
