package wp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// APIPath is the REST prefix appended to the site base URL.
const APIPath = "/wp-json/wp/v2"

// ErrNoCredentials is returned when the client has no basic-auth user.
var ErrNoCredentials = errors.New("wordpress credentials missing")

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s status %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s status %s: %s", e.Op, e.Status, e.Body)
}

// IsStatus reports whether err carries a StatusError.
func IsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Timeouts are the per-call HTTP budgets.
type Timeouts struct {
	Total   time.Duration
	Connect time.Duration
	Read    time.Duration
}

// DefaultTimeouts mirror the long budgets media uploads need.
func DefaultTimeouts() Timeouts {
	return Timeouts{Total: 2400 * time.Second, Connect: 240 * time.Second, Read: 1200 * time.Second}
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Username  string
	Password  string
	Timeouts  Timeouts
	Transport TransportOptions
}

type Client struct {
	http     *http.Client
	base     string
	user     string
	password string
	metrics  *Metrics
}

// New builds a client for the site at opts.BaseURL.
func New(opts Options) *Client {
	to := opts.Timeouts
	if to.Total <= 0 {
		to = DefaultTimeouts()
	}
	inner := http.DefaultTransport.(*http.Transport).Clone()
	inner.DialContext = (&net.Dialer{Timeout: to.Connect, KeepAlive: 30 * time.Second}).DialContext
	inner.ResponseHeaderTimeout = to.Read

	rt := NewRetryingLimiterTransport(opts.Transport)
	rt.Base = inner

	return &Client{
		http:     &http.Client{Timeout: to.Total, Transport: rt},
		base:     strings.TrimRight(opts.BaseURL, "/") + APIPath,
		user:     opts.Username,
		password: opts.Password,
		metrics:  opts.Transport.Metrics,
	}
}

// Metrics returns the transport metrics, or nil when disabled.
func (c *Client) Metrics() *Metrics { return c.metrics }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.user == "" {
		return nil, ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes the body into out when the status equals want.
func (c *Client) do(req *http.Request, op string, want int, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{Op: op, Code: res.StatusCode, Status: res.Status, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "%s decode", op)
	}
	return nil
}

// ---------- Media ----------

// MediaUpload describes one image to attach to a post.
type MediaUpload struct {
	Path        string
	Caption     string
	Description string
	AltText     string
}

type Media struct {
	ID        int    `json:"id"`
	SourceURL string `json:"source_url,omitempty"`
}

// UploadMedia sends the file at m.Path with its text fields as one
// multipart request. Only 201 Created counts as success.
func (c *Client) UploadMedia(ctx context.Context, m MediaUpload) (Media, error) {
	f, err := os.Open(m.Path)
	if err != nil {
		return Media{}, errors.Wrapf(err, "open asset %s", m.Path)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(m.Path))
	if err != nil {
		return Media{}, errors.Wrap(err, "media form")
	}
	if _, err := io.Copy(part, f); err != nil {
		return Media{}, errors.Wrapf(err, "read asset %s", m.Path)
	}
	for _, kv := range [][2]string{
		{"caption", m.Caption},
		{"description", m.Description},
		{"alt_text", m.AltText},
	} {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return Media{}, errors.Wrap(err, "media form")
		}
	}
	if err := mw.Close(); err != nil {
		return Media{}, errors.Wrap(err, "media form")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/media", &buf)
	if err != nil {
		return Media{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out Media
	if err := c.do(req, "media.create", http.StatusCreated, &out); err != nil {
		return Media{}, err
	}
	return out, nil
}

// ---------- Posts ----------

// PostInput is the create payload. Categories is sent as a bare integer.
type PostInput struct {
	Title         string `json:"title"`
	Status        string `json:"status"`
	Content       string `json:"content"`
	FeaturedMedia int    `json:"featured_media"`
	Categories    int    `json:"categories"`
	Tags          []int  `json:"tags,omitempty"`
}

type Rendered struct {
	Rendered string `json:"rendered"`
}

type Post struct {
	ID   int      `json:"id"`
	Link string   `json:"link"`
	GUID Rendered `json:"guid"`
}

// CreatePost creates a post. Only 201 Created counts as success.
func (c *Client) CreatePost(ctx context.Context, in PostInput) (Post, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return Post{}, errors.Wrap(err, "encode post")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/posts", bytes.NewReader(body))
	if err != nil {
		return Post{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Post
	if err := c.do(req, "post.create", http.StatusCreated, &out); err != nil {
		return Post{}, err
	}
	return out, nil
}

// ---------- Tags ----------

type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SearchTags lists up to 100 tags matching search.
func (c *Client) SearchTags(ctx context.Context, search string) ([]Tag, error) {
	q := url.Values{}
	q.Set("search", search)
	q.Set("per_page", "100")
	req, err := c.newRequest(ctx, http.MethodGet, "/tags?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out []Tag
	if err := c.do(req, "tags.list", http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTag creates a tag named name.
func (c *Client) CreateTag(ctx context.Context, name string) (Tag, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return Tag{}, errors.Wrap(err, "encode tag")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/tags", bytes.NewReader(body))
	if err != nil {
		return Tag{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out Tag
	if err := c.do(req, "tag.create", http.StatusCreated, &out); err != nil {
		return Tag{}, err
	}
	return out, nil
}
