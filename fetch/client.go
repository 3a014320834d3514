package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/windvane/booksource/errs"
	"github.com/windvane/booksource/proxy"
	"github.com/windvane/booksource/script"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type options struct {
	timeout   time.Duration
	userAgent string
	proxy     proxy.Func
	logger    *zap.Logger
}

var defaultOptions = options{
	timeout:   15 * time.Second,
	userAgent: defaultUserAgent,
	logger:    zap.NewNop(),
}

type Option func(opts *options)

func WithTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.timeout = d
	}
}

func WithUserAgent(ua string) Option {
	return func(opts *options) {
		opts.userAgent = ua
	}
}

func WithProxy(p proxy.Func) Option {
	return func(opts *options) {
		opts.proxy = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Page is one fetched response. FinalURL is the post-redirect URL and is
// the base every relative link in Body must resolve against; some sites
// redirect listing pages to another host.
type Page struct {
	RequestedURL string
	FinalURL     string
	Body         string
}

// Client fetches targets. Safe for concurrent use.
type Client struct {
	opts options
	http *http.Client
}

func NewClient(opts ...Option) *Client {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.proxy != nil {
		transport.Proxy = o.proxy
	}
	return &Client{
		opts: o,
		http: &http.Client{
			Timeout:   o.timeout,
			Transport: transport,
		},
	}
}

// Open performs the request described by target, carrying the source's
// headers. Non-2xx statuses and transport failures are FetchErrors; bodies
// are decoded to UTF-8 from whatever charset the page declares.
func (c *Client) Open(ctx context.Context, target *Target, headers map[string]string) (*Page, error) {
	var body io.Reader
	if target.Body != "" {
		body = strings.NewReader(target.Body)
	}
	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, body)
	if err != nil {
		return nil, errs.Fetch(target.URL, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.opts.userAgent)
	}
	if target.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Fetch(target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Fetch(target.URL, fmt.Errorf("status code %d", resp.StatusCode))
	}

	decoded, err := decodeBody(resp, target.Charset, c.opts.logger)
	if err != nil {
		return nil, errs.Fetch(target.URL, err)
	}

	c.opts.logger.Debug("fetched page",
		zap.String("url", target.URL),
		zap.String("final_url", resp.Request.URL.String()),
		zap.Int("bytes", len(decoded)))

	return &Page{
		RequestedURL: target.URL,
		FinalURL:     resp.Request.URL.String(),
		Body:         decoded,
	}, nil
}

// Fetch resolves the template against base and opens the result.
func (c *Client) Fetch(ctx context.Context, base, template string, sctx *script.Context, headers map[string]string) (*Page, error) {
	target, err := Resolve(base, template, sctx)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx, target, headers)
}

func decodeBody(resp *http.Response, charsetOverride string, logger *zap.Logger) (string, error) {
	bodyReader := bufio.NewReader(resp.Body)
	contentType := resp.Header.Get("Content-Type")
	if charsetOverride != "" {
		contentType = "text/html; charset=" + charsetOverride
	}
	e := determineEncoding(bodyReader, contentType, logger)
	data, err := io.ReadAll(transform.NewReader(bodyReader, e.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func determineEncoding(r *bufio.Reader, contentType string, logger *zap.Logger) encoding.Encoding {
	peeked, err := r.Peek(1024)
	if err != nil && len(peeked) == 0 {
		logger.Debug("encoding sniff failed", zap.Error(err))
		return unicode.UTF8
	}
	e, _, _ := charset.DetermineEncoding(peeked, contentType)
	return e
}
