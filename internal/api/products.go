package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openmarket/openmarket-cli/internal/formdata"
	"github.com/openmarket/openmarket-cli/internal/request"
)

const (
	// MaxImages is the most images a product may be registered with.
	MaxImages = 5
	// DefaultMaxPages caps ListAll when the caller passes zero.
	DefaultMaxPages = 50
)

var (
	ErrNoImages         = errors.New("at least one image is required")
	ErrTooManyImages    = fmt.Errorf("at most %d images are allowed", MaxImages)
	ErrPageLimitReached = errors.New("page limit reached before the last page")
)

// List fetches one page of products.
func (s ProductsService) List(ctx context.Context, page, perPage int) (*Page, error) {
	d, err := s.Builder.Build(request.List{Page: page, PerPage: perPage})
	if err != nil {
		return nil, err
	}
	var result Page
	if err := s.doJSON(ctx, d, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAll follows hasNext from the first page until the last page or
// maxPages pages have been read. When the cap stops iteration the
// products read so far are returned together with ErrPageLimitReached.
func (s ProductsService) ListAll(ctx context.Context, perPage, maxPages int) ([]Product, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	var all []Product
	for page := 1; ; page++ {
		p, err := s.List(ctx, page, perPage)
		if err != nil {
			return all, err
		}
		all = append(all, p.Pages...)
		if !p.HasNext {
			return all, nil
		}
		if page >= maxPages {
			return all, ErrPageLimitReached
		}
	}
}

// Get fetches a product with its images and vendor.
func (s ProductsService) Get(ctx context.Context, id int) (*Product, error) {
	d, err := s.Builder.Build(request.Detail{ProductID: id})
	if err != nil {
		return nil, err
	}
	var result Product
	if err := s.doJSON(ctx, d, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PrepareCreate builds the multipart create request without sending it.
func (s ProductsService) PrepareCreate(params ProductParams, images []formdata.FilePart) (request.Description, error) {
	switch {
	case len(images) == 0:
		return request.Description{}, ErrNoImages
	case len(images) > MaxImages:
		return request.Description{}, fmt.Errorf("%w: got %d", ErrTooManyImages, len(images))
	}
	params = s.withSecret(params)
	if err := params.Validate(); err != nil {
		return request.Description{}, err
	}

	newBoundary := s.NewBoundary
	if newBoundary == nil {
		newBoundary = formdata.NewBoundary
	}
	boundary := newBoundary()
	d, err := s.Builder.Build(request.Create{Boundary: boundary})
	if err != nil {
		return request.Description{}, err
	}
	body, err := formdata.EncodeProduct(params, images, boundary)
	if err != nil {
		return request.Description{}, err
	}
	return d.WithBody(body), nil
}

// Create registers a product with its images.
func (s ProductsService) Create(ctx context.Context, params ProductParams, images []formdata.FilePart) (*Product, error) {
	d, err := s.PrepareCreate(params, images)
	if err != nil {
		return nil, err
	}
	var result Product
	if err := s.doJSON(ctx, d, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PrepareUpdate builds the JSON patch request without sending it.
func (s ProductsService) PrepareUpdate(id int, params ProductParams) (request.Description, error) {
	params = s.withSecret(params)
	if err := params.Validate(); err != nil {
		return request.Description{}, err
	}
	d, err := s.Builder.Build(request.Update{ProductID: id})
	if err != nil {
		return request.Description{}, err
	}
	body, err := formdata.EncodeJSON(params)
	if err != nil {
		return request.Description{}, err
	}
	return d.WithBody(body), nil
}

// Update replaces the scalar fields of a product.
func (s ProductsService) Update(ctx context.Context, id int, params ProductParams) (*Product, error) {
	d, err := s.PrepareUpdate(id, params)
	if err != nil {
		return nil, err
	}
	var result Product
	if err := s.doJSON(ctx, d, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PrepareArchiveToken builds the request for a product's delete URI.
func (s ProductsService) PrepareArchiveToken(id int) (request.Description, error) {
	d, err := s.Builder.Build(request.ArchiveToken{ProductID: id})
	if err != nil {
		return request.Description{}, err
	}
	body, err := formdata.EncodeJSON(map[string]string{"secret": s.Secret})
	if err != nil {
		return request.Description{}, err
	}
	return d.WithBody(body), nil
}

// ArchiveToken returns the one-time URI that deletes the product.
func (s ProductsService) ArchiveToken(ctx context.Context, id int) (string, error) {
	d, err := s.PrepareArchiveToken(id)
	if err != nil {
		return "", err
	}
	body, _, _, err := s.Do(ctx, d)
	if err != nil {
		return "", err
	}
	token := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if token == "" {
		return "", fmt.Errorf("archive product %d: %w", id, ErrNoneData)
	}
	return token, nil
}

// DeleteWithToken deletes the product behind a URI from ArchiveToken.
func (s ProductsService) DeleteWithToken(ctx context.Context, tokenURL string) (*Product, error) {
	d, err := s.Builder.Build(request.Delete{TokenURL: tokenURL})
	if err != nil {
		return nil, err
	}
	body, _, _, err := s.Do(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var result Product
	if err := decodeJSON(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete fetches a delete URI for id and uses it immediately.
func (s ProductsService) Delete(ctx context.Context, id int) (*Product, error) {
	token, err := s.ArchiveToken(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.DeleteWithToken(ctx, token)
}

func (s ProductsService) withSecret(params ProductParams) ProductParams {
	if params.Secret == "" {
		params.Secret = s.Secret
	}
	return params
}
