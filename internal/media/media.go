// Package media stores uploaded images and serves them back by id.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidObject is returned for payloads that are not usable images.
var ErrInvalidObject = errors.New("invalid media object")

// Object is one file to upload.
type Object struct {
	Filename    string
	ContentType string
	Data        []byte
	UploadedBy  string
}

// Store is the object store collaborator. Upload returns a public URL.
type Store interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// IsImage reports whether the object carries an image/* content type.
func (o Object) IsImage() bool {
	return strings.HasPrefix(o.ContentType, "image/")
}

// DetectContentType sniffs data and falls back to the declared type when
// sniffing only yields the generic octet-stream answer.
func DetectContentType(declared string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if sniffed == "application/octet-stream" && declared != "" {
		return declared
	}
	return sniffed
}

// DecodeDataURI parses "data:<mime>;base64,<payload>" as sent by profile
// updates.
func DecodeDataURI(uri string) (Object, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Object{}, fmt.Errorf("%w: not a data uri", ErrInvalidObject)
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Object{}, fmt.Errorf("%w: missing payload", ErrInvalidObject)
	}

	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Object{}, fmt.Errorf("%w: only base64 data uris are supported", ErrInvalidObject)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Object{}, fmt.Errorf("%w: %w", ErrInvalidObject, err)
	}
	if len(data) == 0 {
		return Object{}, fmt.Errorf("%w: empty payload", ErrInvalidObject)
	}

	return Object{
		Filename:    "upload",
		ContentType: DetectContentType(mime, data),
		Data:        data,
	}, nil
}
