package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Page describes the printed page in inches, as Gotenberg expects.
type Page struct {
	Width, Height           float64
	MarginTop, MarginBottom float64
	MarginLeft, MarginRight float64
	PrintBackground         bool
}

// A4 is the default invoice page.
var A4 = Page{
	Width: 8.27, Height: 11.7,
	MarginTop: 0.4, MarginBottom: 0.4,
	MarginLeft: 0.4, MarginRight: 0.4,
	PrintBackground: true,
}

// Client talks to a Gotenberg instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	page       Page
}

// NewClient constructs a client that prints on A4.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		page:       A4,
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithPage overrides the page geometry.
func (c *Client) WithPage(p Page) *Client {
	c.page = p
	return c
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "ping")
	return err
}

// RenderHTML converts a complete HTML document into a PDF.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, strings.NewReader(html)); err != nil {
		return nil, err
	}
	for name, value := range c.page.fields() {
		if err := writer.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, "render")
}

// do sends req and returns the body. Transport failures and error statuses
// wrap shared.ErrExternalService so handlers answer 502.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if id := middleware.GetReqID(req.Context()); id != "" {
		req.Header.Set("Gotenberg-Trace", id)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg %s: %v: %w", op, err, shared.ErrExternalService)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("gotenberg %s: status %d %s: %w", op, resp.StatusCode, strings.TrimSpace(string(detail)), shared.ErrExternalService)
	}
	return io.ReadAll(resp.Body)
}

func (p Page) fields() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	out := map[string]string{"printBackground": strconv.FormatBool(p.PrintBackground)}
	if p.Width > 0 && p.Height > 0 {
		out["paperWidth"] = f(p.Width)
		out["paperHeight"] = f(p.Height)
	}
	out["marginTop"] = f(p.MarginTop)
	out["marginBottom"] = f(p.MarginBottom)
	out["marginLeft"] = f(p.MarginLeft)
	out["marginRight"] = f(p.MarginRight)
	return out
}
