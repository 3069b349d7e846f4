package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
)

// EphemeralSigner is a keypair generated for one scan and dropped afterwards. It is never
// written anywhere and never signs a transaction.
type EphemeralSigner struct {
	key solana.PrivateKey
}

func NewEphemeralSigner() (*EphemeralSigner, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}
	return &EphemeralSigner{key: key}, nil
}

func (s *EphemeralSigner) PublicKey() address.Address {
	return address.Address(s.key.PublicKey())
}
