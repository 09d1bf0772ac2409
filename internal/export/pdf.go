package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 30 * time.Second

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

func chromiumInstalled() bool {
	for _, bin := range chromeBinaries {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// percentEncodeForDataURL escapes everything but RFC 3986 unreserved
// bytes. Spaces become %20.
func percentEncodeForDataURL(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// exportPDF prints the board page to A4 with headless Chrome.
func exportPDF(parent context.Context, html string, title string) (*Result, error) {
	if !chromiumInstalled() {
		return nil, fmt.Errorf("%w: no chrome or chromium binary on PATH", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	data, err := printToPDF(ctx, "data:text/html;charset=utf-8,"+percentEncodeForDataURL(html))
	if err != nil {
		return nil, fmt.Errorf("print board %q to pdf: %w", title, err)
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

func printToPDF(ctx context.Context, url string) ([]byte, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var out []byte
	printPage := chromedp.ActionFunc(func(ctx context.Context) error {
		buf, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(8.27).
			WithPaperHeight(11.69).
			WithMarginTop(0.5).
			WithMarginBottom(0.5).
			WithMarginLeft(0.5).
			WithMarginRight(0.5).
			Do(ctx)
		out = buf
		return err
	})
	if err := chromedp.Run(browserCtx, chromedp.Navigate(url), chromedp.WaitReady("body"), printPage); err != nil {
		return nil, err
	}
	return out, nil
}

// sanitizeFilename keeps ASCII letters, digits, dashes and underscores,
// turns spaces into dashes and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	const maxLen = 50
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '-'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, title)
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	if name == "" {
		return "board"
	}
	return name
}
