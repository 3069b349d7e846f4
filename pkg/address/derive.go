package address

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	sha256 "github.com/minio/sha256-simd"
)

const (
	// MaxSeedLength bounds every individual seed, including CreateWithSeed's string seed.
	MaxSeedLength = 32
	// MaxSeeds bounds the seed list of a program address, bump excluded.
	MaxSeeds = 16

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrNoValidSeedBump = errors.New("unable to find a viable program address bump seed")
	ErrMaxSeedLength   = errors.New("seed length exceeds the maximum")
	ErrOnCurve         = errors.New("derived address lies on the ed25519 curve")
	ErrIllegalOwner    = errors.New("owner cannot be a program derived address marker")
)

// IsOnCurve reports whether b decodes to a point on the ed25519 curve. Non-canonical y
// encodings are accepted, matching the validators' decompression rules.
func IsOnCurve(b []byte) bool {
	if len(b) != Size {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds ‖ program ‖ "ProgramDerivedAddress" and returns the digest
// as an address, or ErrOnCurve when the digest is a valid public key.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, fmt.Errorf("%w: %d seeds, max %d", ErrMaxSeedLength, len(seeds), MaxSeeds)
	}

	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLength, i, len(seed))
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var out Address
	copy(out[:], h.Sum(nil))

	if IsOnCurve(out[:]) {
		return Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bump seeds from 255 down to 1 and returns the first off-curve
// address together with its bump. The seed list may be empty.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, fmt.Errorf("%w: %d seeds leaves no room for the bump", ErrMaxSeedLength, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}

		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}

	return Address{}, 0, ErrNoValidSeedBump
}

// CreateWithSeed derives sha256(base ‖ seed ‖ owner). No search is involved; any party with the
// three inputs computes the same address.
func CreateWithSeed(base Address, seed string, owner Address) (Address, error) {
	if len(seed) > MaxSeedLength {
		return Address{}, fmt.Errorf("%w: %d bytes", ErrMaxSeedLength, len(seed))
	}
	if string(owner[Size-len(pdaMarker):]) == pdaMarker {
		return Address{}, ErrIllegalOwner
	}

	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(owner[:])

	var out Address
	copy(out[:], h.Sum(nil))
	return out, nil
}
