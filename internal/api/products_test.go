package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmarket/openmarket-cli/internal/formdata"
)

func testParams() ProductParams {
	return ProductParams{
		Name:            "Pencil",
		Description:     "HB pencil",
		Price:           decimal.NewFromInt(1200),
		Currency:        KRW,
		DiscountedPrice: decimal.NewFromInt(200),
		Stock:           10,
	}
}

func TestListDecodesPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		assert.Equal(t, "page_no=2&items_per_page=10", r.URL.RawQuery)
		assert.Empty(t, r.Header.Get("identifier"))
		_, _ = w.Write([]byte(`{"pageNo":2,"itemsPerPage":10,"totalCount":11,"hasNext":false,"hasPrev":true,
			"pages":[{"id":5,"vendor_id":3,"vendorName":"kim","name":"Pen","currency":"USD","price":1.5,
			"bargain_price":1.25,"discounted_price":0.25,"stock":4,"thumbnail":"https://img/5.png"}]}`))
	}))

	page, err := c.Products().List(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.PageNo)
	assert.True(t, page.HasPrev)
	require.Len(t, page.Pages, 1)
	p := page.Pages[0]
	assert.Equal(t, 5, p.ID)
	assert.Equal(t, USD, p.Currency)
	assert.True(t, p.BargainPrice.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, "kim", p.VendorName)
}

func TestListAllFollowsHasNext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page_no"))
		fmt.Fprintf(w, `{"pageNo":%d,"hasNext":%t,"pages":[{"id":%d}]}`, page, page < 3, page)
	}))

	all, err := c.Products().ListAll(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].ID, all[1].ID, all[2].ID})
}

func TestListAllStopsAtCap(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hasNext":true,"pages":[{"id":1}]}`))
	}))

	all, err := c.Products().ListAll(context.Background(), 1, 2)
	assert.ErrorIs(t, err, ErrPageLimitReached)
	assert.Len(t, all, 2)
}

func TestGetDecodesDetail(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":9,"name":"Cup","currency":"KRW","price":3000,
			"images":[{"id":1,"url":"https://img/1.png","thumbnail_url":"https://img/1_t.png","succeed":true}],
			"vendors":{"id":3,"name":"lee"}}`))
	}))

	p, err := c.Products().Get(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, p.Images, 1)
	assert.Equal(t, "https://img/1_t.png", p.Images[0].ThumbnailURL)
	require.NotNil(t, p.Vendors)
	assert.Equal(t, "lee", p.Vendors.Name)
}

func TestGetEmptyBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := c.Products().Get(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNoneData)
}

func TestCreateSendsMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/products", r.URL.Path)
		assert.Equal(t, testIdentifier, r.Header.Get("identifier"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)
		assert.Equal(t, "Boundary-fixed", params["boundary"])

		reader := multipart.NewReader(r.Body, params["boundary"])
		part, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "params", part.FormName())
		raw, _ := io.ReadAll(part)
		var got map[string]any
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "Pencil", got["name"])
		assert.Equal(t, float64(1200), got["price"])
		assert.Equal(t, float64(200), got["discountedPrice"])
		assert.Equal(t, "s3cret", got["secret"])

		img, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "images", img.FormName())
		assert.Equal(t, "a.png", img.FileName())

		_, _ = w.Write([]byte(`{"id":77,"name":"Pencil"}`))
	}))
	c.NewBoundary = func() string { return "Boundary-fixed" }

	p, err := c.Products().Create(context.Background(), testParams(), []formdata.FilePart{{Filename: "a.png", Data: []byte("png")}})
	require.NoError(t, err)
	assert.Equal(t, 77, p.ID)
}

func TestPrepareCreateImageLimits(t *testing.T) {
	s := New("example.com", testIdentifier, "pw").Products()

	_, err := s.PrepareCreate(testParams(), nil)
	assert.ErrorIs(t, err, ErrNoImages)

	images := make([]formdata.FilePart, MaxImages+1)
	for i := range images {
		images[i] = formdata.FilePart{Filename: strconv.Itoa(i) + ".jpg", Data: []byte{1}}
	}
	_, err = s.PrepareCreate(testParams(), images)
	assert.ErrorIs(t, err, ErrTooManyImages)

	d, err := s.PrepareCreate(testParams(), images[:MaxImages])
	require.NoError(t, err)
	assert.Equal(t, MaxImages, strings.Count(string(d.Body), `name="images"`))
}

func TestPrepareCreateValidatesParams(t *testing.T) {
	s := New("example.com", testIdentifier, "pw").Products()
	images := []formdata.FilePart{{Filename: "a.jpg", Data: []byte{1}}}

	bad := testParams()
	bad.Currency = "EUR"
	_, err := s.PrepareCreate(bad, images)
	var se *StructuredError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrValidation, se.Code)
	assert.Equal(t, Currencies, se.AllowedValues)

	bad = testParams()
	bad.DiscountedPrice = decimal.NewFromInt(5000)
	_, err = s.PrepareCreate(bad, images)
	assert.Error(t, err)
}

func TestUpdateSendsJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/products/42", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		for _, key := range []string{"name", "description", "price", "currency", "discountedPrice", "stock", "secret"} {
			assert.Contains(t, got, key)
		}
		assert.Equal(t, float64(10), got["stock"])
		_, _ = w.Write([]byte(`{"id":42,"stock":10}`))
	}))

	p, err := c.Products().Update(context.Background(), 42, testParams())
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock)
}

func TestDeleteUsesArchiveToken(t *testing.T) {
	var steps []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/products/3/archived":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "s3cret", body["secret"])
			_, _ = w.Write([]byte("/api/products/3/token-abc\n"))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/products/3/token-abc":
			assert.Equal(t, testIdentifier, r.Header.Get("identifier"))
			_, _ = w.Write([]byte(`{"id":3,"name":"gone"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	p, err := c.Products().Delete(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "gone", p.Name)
	assert.Equal(t, []string{"POST /api/products/3/archived", "DELETE /api/products/3/token-abc"}, steps)
}

func TestArchiveTokenEmptyBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := c.Products().ArchiveToken(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoneData)
}

func TestDeleteWithTokenEmptyBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	p, err := c.Products().DeleteWithToken(context.Background(), "/api/products/3/x")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProductParamsJSONKeys(t *testing.T) {
	data, err := json.Marshal(testParams())
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Pencil","description":"HB pencil","price":1200,"currency":"KRW",
		"discountedPrice":200,"stock":10,"secret":""}`, string(data))
}

func TestProductParamsKeepMarkupUnescaped(t *testing.T) {
	params := testParams()
	params.Name = "a&b"
	params.Description = "<b>x</b>"

	body, err := formdata.EncodeProduct(params, nil, "Boundary-test")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"name":"a&b"`)
	assert.Contains(t, string(body), `"description":"<b>x</b>"`)
	assert.NotContains(t, string(body), `\u003c`)

	data, err := formdata.EncodeJSON(params)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"description":"<b>x</b>"`)
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	_, err = ParseCurrency("JPY")
	assert.Error(t, err)
}
