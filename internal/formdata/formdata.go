// Package formdata encodes product request bodies: multipart/form-data
// bodies carrying one JSON params part plus image parts, and plain JSON
// bodies for PATCH and archive requests.
//
// The encoder is deterministic for a given boundary. Callers generate a
// fresh boundary per request with NewBoundary.
package formdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// ParamsFieldName is the multipart field carrying the JSON params blob.
	ParamsFieldName = "params"
	// ImagesFieldName is the multipart field name used for every image part.
	ImagesFieldName = "images"

	// LegacyImageContentType is the content type the backend has always
	// received on image parts. It is the outer multipart type, not an image
	// MIME type; FilePart.ContentType overrides it.
	LegacyImageContentType = "multipart/form-data"

	boundaryPrefix = "Boundary-"
	crlf           = "\r\n"
)

// ErrParamSerialization is returned when a field value cannot be encoded as JSON.
var ErrParamSerialization = errors.New("param serialization failed")

// EncodingError reports which field failed to serialize.
type EncodingError struct {
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", ErrParamSerialization, e.Err)
	}
	return fmt.Sprintf("%s for field %q: %v", ErrParamSerialization, e.Field, e.Err)
}

func (e *EncodingError) Unwrap() []error {
	return []error{ErrParamSerialization, e.Err}
}

// Part is one section of a multipart body: a FieldPart or a FilePart.
type Part interface {
	isPart()
}

// FieldPart is a form field whose body is the JSON encoding of Value.
type FieldPart struct {
	Name  string
	Value any
}

// FilePart is a binary attachment.
type FilePart struct {
	Name        string // defaults to "images"
	Filename    string
	ContentType string // defaults to LegacyImageContentType
	Data        []byte
}

func (FieldPart) isPart() {}
func (FilePart) isPart()  {}

// NewBoundary returns a fresh "Boundary-<UUID>" token.
func NewBoundary() string {
	return boundaryPrefix + uuid.NewString()
}

// ContentType returns the request Content-Type header value for boundary.
func ContentType(boundary string) string {
	return fmt.Sprintf("multipart/form-data; boundary=%q", boundary)
}

// Encode serializes parts into a multipart/form-data body. Field parts are
// written first, then file parts, each group in caller order. The body ends
// with the closing delimiter and no trailing CRLF.
func Encode(parts []Part, boundary string) ([]byte, error) {
	if boundary == "" {
		return nil, fmt.Errorf("formdata: empty boundary")
	}

	var buf bytes.Buffer
	var files []FilePart
	for _, p := range parts {
		switch v := p.(type) {
		case FieldPart:
			if err := writeField(&buf, boundary, v); err != nil {
				return nil, err
			}
		case *FieldPart:
			if err := writeField(&buf, boundary, *v); err != nil {
				return nil, err
			}
		case FilePart:
			files = append(files, v)
		case *FilePart:
			files = append(files, *v)
		}
	}
	for _, f := range files {
		writeFile(&buf, boundary, f)
	}
	buf.WriteString("--" + boundary + "--")
	return buf.Bytes(), nil
}

// EncodeProduct builds the create body: a single "params" part holding the
// JSON encoding of params, followed by one part per image. A nil params
// value emits no params part.
func EncodeProduct(params any, images []FilePart, boundary string) ([]byte, error) {
	parts := make([]Part, 0, len(images)+1)
	if params != nil {
		parts = append(parts, FieldPart{Name: ParamsFieldName, Value: params})
	}
	for _, img := range images {
		parts = append(parts, img)
	}
	return Encode(parts, boundary)
}

// EncodeJSON serializes params as a standalone JSON body.
func EncodeJSON(params any) ([]byte, error) {
	data, err := marshal(params)
	if err != nil {
		return nil, &EncodingError{Err: err}
	}
	return data, nil
}

func writeField(buf *bytes.Buffer, boundary string, f FieldPart) error {
	data, err := marshal(f.Value)
	if err != nil {
		return &EncodingError{Field: f.Name, Err: err}
	}
	buf.WriteString("--" + boundary + crlf)
	fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q%s", f.Name, crlf)
	buf.WriteString(crlf)
	buf.Write(data)
	buf.WriteString(crlf)
	return nil
}

func writeFile(buf *bytes.Buffer, boundary string, f FilePart) {
	name := f.Name
	if name == "" {
		name = ImagesFieldName
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = LegacyImageContentType
	}
	buf.WriteString("--" + boundary + crlf)
	fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q; filename=%q%s", name, f.Filename, crlf)
	buf.WriteString("Content-Type: " + contentType + crlf + crlf)
	buf.Write(f.Data)
	buf.WriteString(crlf + crlf)
}

// marshal encodes v without HTML escaping so product descriptions reach the
// backend byte-for-byte.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
