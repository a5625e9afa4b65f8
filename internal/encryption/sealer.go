// Package encryption seals exported dumps with a passphrase so they can be
// carried off the machine.
package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// ErrNoPassphrase is returned when sealing is requested without a passphrase.
var ErrNoPassphrase = errors.New("passphrase required")

// Sealer encrypts and decrypts a stream.
type Sealer interface {
	Seal(r io.Reader, w io.Writer) error
	Open(r io.Reader, w io.Writer) error
}

// ageHeader starts every age file.
var ageHeader = []byte("age-encryption.org/v1")

// IsSealed reports whether data looks like an age file.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, ageHeader)
}

// AgeSealer seals with age's scrypt passphrase recipient.
type AgeSealer struct {
	passphrase string
	workFactor int
}

var _ Sealer = (*AgeSealer)(nil)

// NewAgeSealer creates an AgeSealer. workFactor 0 keeps the age default.
func NewAgeSealer(passphrase string, workFactor int) (*AgeSealer, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	return &AgeSealer{passphrase: passphrase, workFactor: workFactor}, nil
}

// Seal reads plaintext from r and writes age ciphertext to w.
func (s *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	recipient, err := age.NewScryptRecipient(s.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Open reads age ciphertext from r and writes plaintext to w.
func (s *AgeSealer) Open(r io.Reader, w io.Writer) error {
	identity, err := age.NewScryptIdentity(s.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}
	decReader, err := age.Decrypt(bufio.NewReader(r), identity)
	if err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("reading decrypted data: %w", err)
	}
	return nil
}

// plainHeader marks PlainSealer output.
var plainHeader = []byte("NEFPLAIN\n")

// PlainSealer is a deterministic, reversible sealer for tests. It prepends a
// fixed header on Seal and strips it on Open.
type PlainSealer struct{}

var _ Sealer = PlainSealer{}

func (PlainSealer) Seal(r io.Reader, w io.Writer) error {
	if _, err := w.Write(plainHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (PlainSealer) Open(r io.Reader, w io.Writer) error {
	header := make([]byte, len(plainHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, plainHeader) {
		return fmt.Errorf("missing plain sealer header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
