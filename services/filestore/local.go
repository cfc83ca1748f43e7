// Package filestore keeps uploaded images on the local disk, under the media root.
package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

const MaxUploadSize = 5 << 20 // 5MB

var (
	allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif"}

	errImageTooLarge   = fmt.Errorf("the image must not exceed %dMB", MaxUploadSize>>20)
	errUnsupportedType = errors.New("only JPEG, PNG & GIF images are allowed")
	errCorruptImage    = errors.New("the image could not be decoded")

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)
)

type LocalStore struct {
	root     string
	maxWidth int
}

func NewLocalStore(conf *core.Config) *LocalStore {
	return &LocalStore{root: conf.Storage.MediaRoot, maxWidth: conf.Storage.MaxImageWidth}
}

// Root is the directory served under the media URL.
func (s *LocalStore) Root() string { return s.root }

// SaveImage stores the image read from r in dir and returns its slash-separated path relative to the root.
// Images wider than the configured max width are downscaled.
func (s *LocalStore) SaveImage(ctx context.Context, dir string, r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return "", errors.Wrap(err, "reading image")
	}
	if len(data) > MaxUploadSize {
		return "", core.NewFieldValidationError("proof_image", errImageTooLarge)
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
		return "", core.NewFieldValidationError("proof_image", errUnsupportedType)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", core.NewFieldValidationError("proof_image", errCorruptImage)
	}

	relPath := uniqueFilename(dir, filename, mt.Extension())
	fullPath := filepath.Join(s.root, filepath.FromSlash(relPath))
	if err = os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}

	if s.maxWidth > 0 && img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
		if err = imaging.Save(img, fullPath); err != nil {
			return "", errors.Wrap(err, "saving resized image")
		}
		return relPath, nil
	}
	if err = os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", errors.Wrap(err, "saving image")
	}
	return relPath, nil
}

// Delete removes a file previously returned by SaveImage. Missing files are ignored.
func (s *LocalStore) Delete(relPath string) error {
	if relPath == "" {
		return nil
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+relPath)))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}

// uniqueFilename builds dir/<yyyymmdd>-<uuid>-<safe name><ext>.
func uniqueFilename(dir, filename, ext string) string {
	base := strings.TrimSuffix(path.Base(filepath.ToSlash(filename)), path.Ext(filename))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if len(base) > 40 {
		base = base[:40]
	}
	name := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102"), uuid.NewString())
	if base != "" && base != "." {
		name += "-" + base
	}
	return path.Join(dir, name+ext)
}
