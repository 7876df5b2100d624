// Package blob stores proof photos and enrollment images on the local
// filesystem and hands out HMAC signed, time limited URLs for them.
package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

// ErrInvalidSignature is returned when a signed path fails verification or
// has expired.
var ErrInvalidSignature = errors.New("invalid or expired signature")

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("blob not found")

// Store persists binary objects under a root directory. Object paths are
// relative, forward-slash separated, and generated server side.
type Store struct {
	root      string
	secret    []byte
	urlExpiry time.Duration
	thumbSize int
	now       func() time.Time
}

// NewStore creates a blob store rooted at dir.
func NewStore(dir string, secret []byte, urlExpiry time.Duration, thumbSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	if thumbSize <= 0 {
		thumbSize = 320
	}
	return &Store{
		root:      dir,
		secret:    secret,
		urlExpiry: urlExpiry,
		thumbSize: thumbSize,
		now:       time.Now,
	}, nil
}

// NewObjectPath returns a fresh relative path for an object of the given
// kind. Paths group objects by kind and date so directories stay small.
func (s *Store) NewObjectPath(kind string) string {
	day := s.now().UTC().Format("2006/01/02")
	return filepath.ToSlash(filepath.Join(kind, day, uuid.NewString()+".jpg"))
}

// Save writes the object and returns its relative path.
func (s *Store) Save(kind string, r io.Reader) (string, error) {
	rel := s.NewObjectPath(kind)
	if err := s.SaveAt(rel, r); err != nil {
		return "", err
	}
	return rel, nil
}

// SaveAt writes the object at a previously issued relative path.
func (s *Store) SaveAt(rel string, r io.Reader) error {
	full, err := s.fullPath(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(full)
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

// Open returns a reader for the object at the relative path.
func (s *Store) Open(rel string) (io.ReadCloser, error) {
	full, err := s.fullPath(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Thumbnail decodes the stored image and returns a JPEG scaled so its longer
// edge is the configured thumbnail size. The thumbnail is cached next to the
// original.
func (s *Store) Thumbnail(rel string) (io.ReadCloser, error) {
	full, err := s.fullPath(rel)
	if err != nil {
		return nil, err
	}

	thumbPath := full + ".thumb.jpg"
	if f, err := os.Open(thumbPath); err == nil {
		return f, nil
	}

	src, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer src.Close()

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := resizeImage(img, s.thumbSize)

	out, err := os.Create(thumbPath)
	if err != nil {
		return nil, fmt.Errorf("create thumbnail: %w", err)
	}
	if err := jpeg.Encode(out, resized, &jpeg.Options{Quality: 80}); err != nil {
		out.Close()
		os.Remove(thumbPath)
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	out.Close()

	f, err := os.Open(thumbPath)
	if err != nil {
		return nil, fmt.Errorf("open thumbnail: %w", err)
	}
	return f, nil
}

// SignPath returns the query fragment "expires=...&sig=..." authorizing a
// download of rel until the expiry.
func (s *Store) SignPath(rel string) (expires int64, sig string) {
	expires = s.now().Add(s.urlExpiry).Unix()
	sig = s.sign(rel, expires)
	return expires, sig
}

// VerifyPath checks the signature and expiry produced by SignPath.
func (s *Store) VerifyPath(rel string, expires int64, sig string) error {
	if s.now().Unix() > expires {
		return ErrInvalidSignature
	}
	expected := s.sign(rel, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

func (s *Store) sign(rel string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(rel))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// fullPath resolves the relative path under the root, refusing traversal.
func (s *Store) fullPath(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path %q", rel)
	}
	return filepath.Join(s.root, clean), nil
}

// resizeImage scales an image so its longer edge equals maxSize, preserving
// aspect ratio. Images already smaller are returned as-is.
func resizeImage(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = height * maxSize / width
	} else {
		newHeight = maxSize
		newWidth = width * maxSize / height
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
