package imaging

import (
	"io"
	"os"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

// Decoder turns an encoded image file into a dense array.
type Decoder interface {
	Decode(r io.Reader) (Array, error)
}

// Session is one load-through-analysis processing context. It holds at most
// one canonical image; a later load replaces it. A Session is not safe for a
// load concurrent with reads: callers either serialize access or use one
// Session per request.
type Session struct {
	decoder  Decoder
	image    *Canonical
	metadata domain.ImageMetadata
}

func NewSession(decoder Decoder) *Session {
	return &Session{decoder: decoder}
}

// Load decodes r, canonicalizes the result and returns its metadata.
func (s *Session) Load(r io.Reader) (domain.ImageMetadata, error) {
	arr, err := s.decoder.Decode(r)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidDimensionality) {
			return domain.ImageMetadata{}, err
		}
		return domain.ImageMetadata{}, domain.WrapError(domain.ErrLoadFailure, "decode image", err)
	}
	return s.Use(arr)
}

func (s *Session) LoadFile(path string) (domain.ImageMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ImageMetadata{}, domain.WrapError(domain.ErrLoadFailure, "open image", err)
	}
	defer f.Close()
	return s.Load(f)
}

// Use canonicalizes an already decoded array and makes it the held image.
func (s *Session) Use(arr Array) (domain.ImageMetadata, error) {
	img, err := Canonicalize(arr)
	if err != nil {
		return domain.ImageMetadata{}, err
	}
	s.image = img
	s.metadata = Describe(img)
	return s.metadata, nil
}

func (s *Session) Loaded() bool { return s.image != nil }

// Image exposes the held canonical array for read-only use.
func (s *Session) Image() (*Canonical, error) {
	if s.image == nil {
		return nil, domain.NewError(domain.ErrNoImageLoaded, "load an image first")
	}
	return s.image, nil
}

func (s *Session) Metadata() (domain.ImageMetadata, error) {
	if s.image == nil {
		return domain.ImageMetadata{}, domain.NewError(domain.ErrNoImageLoaded, "load an image first")
	}
	return s.metadata, nil
}

func (s *Session) Slice(idx domain.SliceIndex) (Plane, error) {
	img, err := s.Image()
	if err != nil {
		return Plane{}, err
	}
	return Slice(img, idx)
}

func (s *Session) Statistics() (Stats, error) {
	img, err := s.Image()
	if err != nil {
		return Stats{}, err
	}
	return Statistics(img), nil
}

func (s *Session) Reduce(nComponents int) (Reduction, error) {
	img, err := s.Image()
	if err != nil {
		return Reduction{}, err
	}
	return Reduce(img, nComponents)
}

func (s *Session) Segment(idx domain.SliceIndex, method string) (Segmentation, error) {
	img, err := s.Image()
	if err != nil {
		return Segmentation{}, err
	}
	return Segment(img, idx, method)
}
