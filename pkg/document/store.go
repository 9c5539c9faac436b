package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/viant/afs"
)

// ErrDocumentNotFound indicates the store has no document for a reference.
var ErrDocumentNotFound = errors.New("document not found")

// Store opens stored documents by reference.
type Store interface {
	Open(ctx context.Context, ref Reference) (io.ReadCloser, error)
}

// AFSStore reads documents from any location supported by viant/afs
// (local paths, file://, mem://, http(s)://, gs://, s3://).
type AFSStore struct {
	fs      afs.Service
	baseURL string
}

// NewAFSStore creates a store rooted at baseURL. Documents live at <baseURL>/<category>s/<name>.
func NewAFSStore(baseURL string) *AFSStore {
	return &AFSStore{fs: afs.New(), baseURL: strings.TrimRight(baseURL, "/")}
}

// URL returns the location the store reads ref from.
func (s *AFSStore) URL(ref Reference) string {
	return s.baseURL + "/" + ref.Key()
}

// Open returns a reader over the referenced document.
func (s *AFSStore) Open(ctx context.Context, ref Reference) (io.ReadCloser, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return openURL(ctx, s.fs, s.URL(ref))
}

// URLResolver maps a storage key to a downloadable URL.
type URLResolver interface {
	DeliveryURL(key string) (string, error)
}

// ResolvingStore resolves references through a URLResolver (e.g. Cloudinary) and downloads them with afs.
type ResolvingStore struct {
	fs       afs.Service
	resolver URLResolver
}

// NewResolvingStore creates a store backed by resolver.
func NewResolvingStore(resolver URLResolver) *ResolvingStore {
	return &ResolvingStore{fs: afs.New(), resolver: resolver}
}

// Open resolves ref to a URL and returns a reader over it.
func (s *ResolvingStore) Open(ctx context.Context, ref Reference) (io.ReadCloser, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	location, err := s.resolver.DeliveryURL(ref.Key())
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return openURL(ctx, s.fs, location)
}

func openURL(ctx context.Context, fs afs.Service, location string) (io.ReadCloser, error) {
	exists, err := fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", location, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, location)
	}

	reader, err := fs.OpenURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return reader, nil
}
