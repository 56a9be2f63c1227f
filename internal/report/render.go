package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// Renderer turns a report document into a downloadable artifact.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
	ContentType() string
	Extension() string
}

// HTMLRenderer serves the document markup as is.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(_ context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("empty document")
	}
	return []byte(html), nil
}

func (HTMLRenderer) ContentType() string { return ContentTypeHTML }
func (HTMLRenderer) Extension() string   { return ".html" }

// ChromeRenderer prints the document to PDF with a headless Chrome.
type ChromeRenderer struct {
	Timeout  time.Duration
	ExecPath string
}

func (c ChromeRenderer) ContentType() string { return ContentTypePDF }
func (c ChromeRenderer) Extension() string   { return ".pdf" }

func (c ChromeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errors.New("empty document")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var pdf []byte
	err := chromedp.Run(bctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome render: %w", err)
	}
	return pdf, nil
}

// NewRenderer maps a configured renderer name to an implementation.
func NewRenderer(name string, timeout time.Duration, execPath string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chrome":
		return ChromeRenderer{Timeout: timeout, ExecPath: execPath}, nil
	case "html":
		return HTMLRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report renderer %q", name)
	}
}
