package encryption

import (
	"fmt"

	"extranef/internal/config"
)

// NewSealerFromConfig creates a Sealer based on the configuration type.
func NewSealerFromConfig(cfg config.EncryptionConfig, passphrase string) (Sealer, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeSealer(passphrase, cfg.ScryptWorkFactor)
	case "plain":
		return PlainSealer{}, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
