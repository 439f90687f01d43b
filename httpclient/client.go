package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	jsonContentType   = "application/json"
	binaryContentType = "application/octet-stream"
	acceptJson        = "application/json, application/*+json"
)

// Details holds what is needed to reach one host.
type Details struct {
	Url      string
	Username string
	Password string
	// Optional. Zero means no per-request timeout.
	Timeout time.Duration
}

// Client is a REST client bound to the root URL of a single host.
// One client is created per host and passed explicitly to the services using it.
type Client struct {
	rootUrl    string
	username   string
	password   string
	httpClient *http.Client
}

func New(details Details) (*Client, error) {
	if details.Url == "" {
		return nil, errors.New("a root URL is required")
	}
	if _, err := url.Parse(details.Url); err != nil {
		return nil, errors.Wrapf(err, "invalid root URL '%s'", details.Url)
	}
	return &Client{
		rootUrl:    strings.TrimSuffix(details.Url, "/"),
		username:   details.Username,
		password:   details.Password,
		httpClient: &http.Client{Timeout: details.Timeout},
	}, nil
}

// SetHttpClient replaces the underlying transport client, mainly for tests.
func (c *Client) SetHttpClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

func (c *Client) RootUrl() string {
	return c.rootUrl
}

// BuildUrl joins the relative path to the root URL and appends the query,
// dropping empty query values.
func (c *Client) BuildUrl(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullUrl := c.rootUrl + path
	for key, values := range query {
		if len(values) == 0 || values[0] == "" {
			query.Del(key)
		}
	}
	if encoded := query.Encode(); encoded != "" {
		fullUrl += "?" + encoded
	}
	return fullUrl
}

// GetJson sends a GET request and decodes the JSON response body into target.
func (c *Client) GetJson(ctx context.Context, path string, query url.Values, target interface{}) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return decode(body, target)
}

// Get sends a GET request and returns the raw body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.BuildUrl(path, query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", acceptJson)
	return c.do(req)
}

// SendJson sends payload as a JSON body. When target isn't nil, the response body is decoded into it.
func (c *Client) SendJson(ctx context.Context, method, path string, query url.Values, payload, target interface{}) error {
	content, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request body")
	}
	req, err := c.newRequest(ctx, method, c.BuildUrl(path, query), bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", jsonContentType)
	req.Header.Set("Accept", acceptJson)
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return decode(body, target)
}

// PutBinary streams content as the body of a PUT request.
func (c *Client) PutBinary(ctx context.Context, path string, content io.Reader, size int64) error {
	req, err := c.newRequest(ctx, http.MethodPut, c.BuildUrl(path, nil), content)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", binaryContentType)
	_, err = c.do(req)
	return err
}

// Do sends a request prepared by the caller, adding credentials.
// Used by services that need extra headers.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	c.authenticate(req)
	return c.do(req)
}

func (c *Client) newRequest(ctx context.Context, method, fullUrl string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, fullUrl, body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s request to %s", method, fullUrl)
	}
	c.authenticate(req)
	return req, nil
}

func (c *Client) authenticate(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) do(req *http.Request) (body []byte, err error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); err == nil {
			err = closeErr
		}
	}()
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response of %s %s", req.Method, req.URL.Redacted())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HttpError{Method: req.Method, Url: req.URL.Redacted(), StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decode(body []byte, target interface{}) error {
	if err := json.Unmarshal(body, target); err != nil {
		return errors.Wrap(err, "failed to parse response body")
	}
	return nil
}
