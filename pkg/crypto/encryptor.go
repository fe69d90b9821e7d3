package crypto

import (
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

var ErrNoIdentity = errors.New("no sealing identity configured")

// Sealer encrypts stored documents with age. New objects are sealed to the
// current identity; retired identities only open objects written before a
// key rotation.
type Sealer struct {
	current    *age.X25519Identity
	identities []age.Identity
}

// NewSealer parses AGE-SECRET-KEY identities. An empty current key generates
// a throwaway identity, which only makes sense in development.
func NewSealer(currentKey string, retiredKeys ...string) (*Sealer, error) {
	var current *age.X25519Identity
	var err error

	if currentKey == "" {
		if len(retiredKeys) > 0 {
			return nil, ErrNoIdentity
		}
		current, err = age.GenerateX25519Identity()
		if err != nil {
			return nil, fmt.Errorf("generating identity: %w", err)
		}
	} else {
		current, err = age.ParseX25519Identity(currentKey)
		if err != nil {
			return nil, fmt.Errorf("parsing identity: %w", err)
		}
	}

	s := &Sealer{current: current, identities: []age.Identity{current}}
	for i, key := range retiredKeys {
		id, err := age.ParseX25519Identity(key)
		if err != nil {
			return nil, fmt.Errorf("parsing retired identity %d: %w", i+1, err)
		}
		s.identities = append(s.identities, id)
	}
	return s, nil
}

// GenerateIdentity returns a new key suitable for STORAGE_ENCRYPTION_KEY.
func GenerateIdentity() (string, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Recipient is the public half of the current identity.
func (s *Sealer) Recipient() string {
	return s.current.Recipient().String()
}

// Seal streams src into dst encrypted to the current identity and returns
// the number of plaintext bytes consumed.
func (s *Sealer) Seal(dst io.Writer, src io.Reader) (int64, error) {
	w, err := age.Encrypt(dst, s.current.Recipient())
	if err != nil {
		return 0, fmt.Errorf("starting seal: %w", err)
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("sealing: %w", err)
	}
	if err := w.Close(); err != nil {
		return n, fmt.Errorf("finishing seal: %w", err)
	}
	return n, nil
}

// Open returns a reader over the plaintext of a sealed stream, trying the
// current identity and then the retired ones.
func (s *Sealer) Open(src io.Reader) (io.Reader, error) {
	r, err := age.Decrypt(src, s.identities...)
	if err != nil {
		return nil, fmt.Errorf("opening sealed object: %w", err)
	}
	return r, nil
}
