package request

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dghubble/sling"
)

const (
	UserAgent = "wca-events/1.0 (github.com/pfrederiksen/wca-events)"
	Timeout   = 30 * time.Second
)

// Request describes the shape of a call: method, extra headers, an optional
// JSON body and how to decode the response.
type Request struct {
	Method string
	Header map[string]string
	Body   interface{}

	// NoAuth suppresses the bot Authorization header.
	NoAuth bool

	// Decoder overrides the default JSON response decoder.
	Decoder sling.ResponseDecoder
}

// Client issues requests against a base address with a bot credential.
type Client struct {
	base  *sling.Sling
	token string
}

// NewClient creates a Client. Relative targets resolve against baseURL;
// absolute targets are used as-is. A nil httpClient gets the package Timeout.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: Timeout}
	}
	return &Client{
		base:  sling.New().Client(httpClient).Base(baseURL).Set("User-Agent", UserAgent),
		token: token,
	}
}

// APIError is the error body returned by JSON APIs such as Discord.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: unexpected status code %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.URL, e.StatusCode)
}

// Send issues one call to target and settles it through One.
func Send[T, R any](ctx context.Context, c *Client, r Request, target string, transform func(T) (R, error), failure error) (R, error) {
	return One(ctx, NewCall[T](c, r, target), transform, failure)
}

// SendEach issues one call per item, addressed by target(item), and settles
// the batch through All. transform receives the decoded values in item order.
func SendEach[I, T, R any](ctx context.Context, c *Client, r Request, target func(I) string, items []I, transform func([]T) (R, error), failure error) (R, error) {
	calls := make([]Call[T], len(items))
	for i, item := range items {
		calls[i] = NewCall[T](c, r, target(item))
	}
	return All(ctx, calls, transform, failure)
}

// NewCall builds a pending call that decodes a successful response into T.
func NewCall[T any](c *Client, r Request, target string) Call[T] {
	return func(ctx context.Context) (T, error) {
		var out T

		s := c.base.New()
		switch r.Method {
		case "", http.MethodGet:
			s.Get(target)
		case http.MethodPost:
			s.Post(target)
		case http.MethodPut:
			s.Put(target)
		case http.MethodPatch:
			s.Patch(target)
		case http.MethodDelete:
			s.Delete(target)
		default:
			return out, fmt.Errorf("unsupported method %q", r.Method)
		}

		for k, v := range r.Header {
			s.Set(k, v)
		}
		if !r.NoAuth {
			s.Set("Authorization", "Bot "+c.token)
		}
		if r.Body != nil {
			s.BodyJSON(r.Body)
		}
		if r.Decoder != nil {
			s.ResponseDecoder(r.Decoder)
		}

		req, err := s.Request()
		if err != nil {
			return out, fmt.Errorf("creating request: %w", err)
		}

		var apiErr APIError
		resp, err := s.Do(req.WithContext(ctx), &out, &apiErr)
		if resp != nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			// The failure body may not be JSON; the status is what matters.
			return out, &StatusError{
				Method:     req.Method,
				URL:        req.URL.String(),
				StatusCode: resp.StatusCode,
				Message:    apiErr.Message,
			}
		}
		if err != nil {
			return out, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		}
		return out, nil
	}
}

// HTMLDecoder decodes a response body into a **goquery.Document. Other
// targets (such as an error body) are left untouched.
type HTMLDecoder struct{}

// Decode implements sling.ResponseDecoder.
func (HTMLDecoder) Decode(resp *http.Response, v interface{}) error {
	target, ok := v.(**goquery.Document)
	if !ok {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing HTML: %w", err)
	}
	*target = doc
	return nil
}
