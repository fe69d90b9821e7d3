package storage

import (
	"context"
	"io"

	"github.com/hugh/estateflow/pkg/crypto"
)

// EncryptedStore seals objects before handing them to the wrapped store. The
// inner store only ever sees ciphertext.
type EncryptedStore struct {
	inner  Store
	sealer *crypto.Sealer
}

func NewEncryptedStore(inner Store, sealer *crypto.Sealer) *EncryptedStore {
	return &EncryptedStore{inner: inner, sealer: sealer}
}

func (s *EncryptedStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	pr, pw := io.Pipe()
	go func() {
		_, err := s.sealer.Seal(pw, r)
		pw.CloseWithError(err)
	}()

	err := s.inner.Put(ctx, key, pr, "application/octet-stream")
	// Unblocks the sealing goroutine when the inner store stopped reading early.
	pr.CloseWithError(err)
	return err
}

func (s *EncryptedStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.inner.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	pr, err := s.sealer.Open(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return &openedObject{Reader: pr, closer: rc}, nil
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

type openedObject struct {
	io.Reader
	closer io.Closer
}

func (o *openedObject) Close() error {
	return o.closer.Close()
}
