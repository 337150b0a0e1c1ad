// Package request maps logical OpenMarket product operations to concrete
// request descriptions: scheme, host, path, query, method and headers.
//
// Building is pure. Bodies are attached by the caller after encoding them
// with the formdata package.
package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openmarket/openmarket-cli/internal/formdata"
)

const (
	DefaultScheme  = "https"
	DefaultHost    = "market-training.yagom-academy.kr"
	DefaultPerPage = 20

	IdentifierHeader = "identifier"
	ContentType      = "Content-Type"
	JSONContentType  = "application/json"

	productsPath = "/api/products"
)

var (
	// ErrInvalidURL means the description cannot compose into a valid
	// absolute URL. It signals a programming error, not a runtime condition.
	ErrInvalidURL = errors.New("invalid request URL")
	// ErrMissingBoundary is returned when Create carries no boundary.
	ErrMissingBoundary = errors.New("missing multipart boundary")
)

// BuildError wraps a build failure with the operation that caused it.
type BuildError struct {
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s request: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Method is the HTTP verb of a description.
type Method string

const (
	GET    Method = http.MethodGet
	POST   Method = http.MethodPost
	PATCH  Method = http.MethodPatch
	DELETE Method = http.MethodDelete
)

// Operation is one of List, Detail, Create, Update, ArchiveToken or Delete.
type Operation interface {
	name() string
}

// List requests one page of products.
type List struct {
	Page    int
	PerPage int // DefaultPerPage when zero
}

// Detail requests a single product.
type Detail struct {
	ProductID int
}

// Create registers a new product. Boundary must match the encoded body.
type Create struct {
	Boundary string
}

// Update patches an existing product.
type Update struct {
	ProductID int
}

// ArchiveToken requests the one-time delete URI for a product.
type ArchiveToken struct {
	ProductID int
}

// Delete removes a product through the URI returned by ArchiveToken.
type Delete struct {
	TokenURL string
}

func (List) name() string         { return "list" }
func (Detail) name() string       { return "detail" }
func (Create) name() string       { return "create" }
func (Update) name() string       { return "update" }
func (ArchiveToken) name() string { return "archive-token" }
func (Delete) name() string       { return "delete" }

// QueryItem is one name/value pair, kept in emission order.
type QueryItem struct {
	Name  string
	Value string
}

// Description is a fully resolved request. Body is nil until attached.
type Description struct {
	Scheme string
	Host   string
	Path   string
	Query  []QueryItem
	Method Method
	Header http.Header
	Body   []byte

	// absolute is set for descriptions built from a full URL.
	absolute *url.URL
}

// Builder resolves operations against a fixed endpoint and vendor identifier.
type Builder struct {
	Scheme     string
	Host       string
	Identifier string
}

// NewBuilder returns a Builder using the https scheme.
func NewBuilder(host, identifier string) *Builder {
	return &Builder{
		Scheme:     DefaultScheme,
		Host:       host,
		Identifier: identifier,
	}
}

// Build maps op to a Description. It has no side effects.
func (b *Builder) Build(op Operation) (Description, error) {
	if op == nil {
		return Description{}, &BuildError{Op: "unknown", Err: fmt.Errorf("%w: nil operation", ErrInvalidURL)}
	}

	scheme := b.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	d := Description{
		Scheme: scheme,
		Host:   b.Host,
		Header: http.Header{},
	}

	switch v := op.(type) {
	case List:
		if v.Page <= 0 || v.PerPage < 0 {
			return Description{}, invalid(op, "page must be positive")
		}
		perPage := v.PerPage
		if perPage == 0 {
			perPage = DefaultPerPage
		}
		d.Path = productsPath
		d.Method = GET
		d.Query = []QueryItem{
			{Name: "page_no", Value: strconv.Itoa(v.Page)},
			{Name: "items_per_page", Value: strconv.Itoa(perPage)},
		}
	case Detail:
		if v.ProductID <= 0 {
			return Description{}, invalid(op, "product id must be positive")
		}
		d.Path = productPath(v.ProductID)
		d.Method = GET
	case Create:
		if v.Boundary == "" {
			return Description{}, &BuildError{Op: op.name(), Err: ErrMissingBoundary}
		}
		d.Path = productsPath
		d.Method = POST
		d.Header.Set(ContentType, formdata.ContentType(v.Boundary))
	case Update:
		if v.ProductID <= 0 {
			return Description{}, invalid(op, "product id must be positive")
		}
		d.Path = productPath(v.ProductID)
		d.Method = PATCH
		d.Header.Set(ContentType, JSONContentType)
	case ArchiveToken:
		if v.ProductID <= 0 {
			return Description{}, invalid(op, "product id must be positive")
		}
		d.Path = productPath(v.ProductID) + "/archived"
		d.Method = POST
		d.Header.Set(ContentType, JSONContentType)
	case Delete:
		if err := resolveTokenURL(&d, v.TokenURL); err != nil {
			return Description{}, &BuildError{Op: op.name(), Err: err}
		}
		d.Method = DELETE
	default:
		return Description{}, &BuildError{Op: op.name(), Err: fmt.Errorf("%w: unsupported operation %T", ErrInvalidURL, op)}
	}

	if needsIdentifier(op) {
		d.Header.Set(IdentifierHeader, b.Identifier)
	}

	if _, err := d.URL(); err != nil {
		return Description{}, &BuildError{Op: op.name(), Err: err}
	}
	return d, nil
}

func needsIdentifier(op Operation) bool {
	switch op.(type) {
	case List, Detail:
		return false
	default:
		return true
	}
}

func productPath(id int) string {
	return productsPath + "/" + strconv.Itoa(id)
}

func invalid(op Operation, reason string) error {
	return &BuildError{Op: op.name(), Err: fmt.Errorf("%w: %s", ErrInvalidURL, reason)}
}

// resolveTokenURL accepts either a path ("/api/products/1/abc") or an
// absolute URL returned by the archive endpoint.
func resolveTokenURL(d *Description, token string) error {
	token = strings.TrimSpace(token)
	token = strings.Trim(token, `"`)
	if token == "" {
		return fmt.Errorf("%w: empty token url", ErrInvalidURL)
	}
	u, err := url.Parse(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.IsAbs() {
		if u.Host == "" {
			return fmt.Errorf("%w: token url %q has no host", ErrInvalidURL, token)
		}
		d.Scheme = u.Scheme
		d.Host = u.Host
		d.Path = u.Path
		d.absolute = u
		return nil
	}
	if !strings.HasPrefix(token, "/") {
		token = "/" + token
	}
	d.Path = token
	return nil
}

// Fetch describes a plain GET of an absolute http(s) URL, such as a product
// image on a storage host. No identifier header is attached.
func Fetch(rawURL string) (Description, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Description{}, &BuildError{Op: "Fetch", Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Description{}, &BuildError{Op: "Fetch", Err: fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, rawURL)}
	}
	return Description{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     u.Path,
		Method:   GET,
		Header:   http.Header{},
		absolute: u,
	}, nil
}

// URL composes scheme, host, path and query into an absolute URL.
func (d Description) URL() (*url.URL, error) {
	if d.absolute != nil {
		u := *d.absolute
		return &u, nil
	}
	if d.Scheme == "" || d.Host == "" {
		return nil, fmt.Errorf("%w: scheme and host are required", ErrInvalidURL)
	}
	if strings.ContainsAny(d.Host, "/?# ") {
		return nil, fmt.Errorf("%w: malformed host %q", ErrInvalidURL, d.Host)
	}
	u := &url.URL{
		Scheme: d.Scheme,
		Host:   d.Host,
		Path:   d.Path,
	}
	if len(d.Query) > 0 {
		pairs := make([]string, 0, len(d.Query))
		for _, q := range d.Query {
			pairs = append(pairs, url.QueryEscape(q.Name)+"="+url.QueryEscape(q.Value))
		}
		u.RawQuery = strings.Join(pairs, "&")
	}
	if _, err := url.Parse(u.String()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return u, nil
}

// WithBody returns a copy of d carrying body.
func (d Description) WithBody(body []byte) Description {
	d.Header = d.Header.Clone()
	d.Body = body
	return d
}

// HTTPRequest converts d into an *http.Request bound to ctx.
func (d Description) HTTPRequest(ctx context.Context) (*http.Request, error) {
	u, err := d.URL()
	if err != nil {
		return nil, err
	}
	var body io.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, string(d.Method), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}
