package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/orderdesk/apiserver/internal/storage"
)

// UploadsPathPrefix is the public path under which stored images are served.
const UploadsPathPrefix = "/uploads/"

// FallbackContentType is served for stored files without a known image
// extension, such as files written before extensions were restricted.
const FallbackContentType = "application/octet-stream"

// imageTypes lists the extensions kept from client filenames. Anything a
// browser could render as a document (html, svg, js) is stored bare.
var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ImageUpload is a single file received with an order request.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageUploader stores order images under generated names.
type ImageUploader struct {
	storage *storage.Storage
	newName func() string
}

func NewImageUploader(s *storage.Storage) *ImageUploader {
	return &ImageUploader{
		storage: s,
		newName: func() string { return uuid.NewString() },
	}
}

// Save stores img and returns its public path, /uploads/<filename>.
func (u *ImageUploader) Save(ctx context.Context, img ImageUpload) (string, error) {
	key := u.newName() + safeExtension(img.Filename)
	if err := u.storage.Put(ctx, key, img.Body, img.Size, contentTypeFor(key)); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return UploadsPathPrefix + key, nil
}

// Open returns the stored image named key with its content type. Keys without
// an image extension report FallbackContentType.
func (u *ImageUploader) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, "", storage.ErrObjectNotFound
	}
	rc, err := u.storage.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return rc, contentTypeFor(key), nil
}

// Remove deletes the image behind a public path produced by Save.
func (u *ImageUploader) Remove(ctx context.Context, publicPath string) error {
	key, ok := strings.CutPrefix(publicPath, UploadsPathPrefix)
	if !ok || key == "" {
		return errors.New("not an upload path")
	}
	return u.storage.Delete(ctx, key)
}

// safeExtension returns the lowercased extension of filename when it is a
// known image type, or nothing.
func safeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if _, ok := imageTypes[ext]; !ok {
		return ""
	}
	return ext
}

func contentTypeFor(key string) string {
	if contentType, ok := imageTypes[strings.ToLower(path.Ext(key))]; ok {
		return contentType
	}
	return FallbackContentType
}
