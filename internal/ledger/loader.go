package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

var (
	BPFLoaderUpgradeable = address.MustParse("BPFLoaderUpgradeab1e11111111111111111111111")
	BPFLoaderV4          = address.MustParse("LoaderV411111111111111111111111111111111111")
	BPFLoader2           = address.MustParse("BPFLoader2111111111111111111111111111111111")
	BPFLoader1           = address.MustParse("BPFLoader1111111111111111111111111111111111")
)

// Upgradeable loader state tags and layout.
const (
	upgradeableProgramTag     = 2
	upgradeableProgramDataTag = 3
	upgradeableProgramSize    = 4 + address.Size
	programDataHeaderSize     = 4 + 8 + 1 + address.Size
	loaderV4HeaderSize        = 8 + address.Size + 8
)

// loaderKind maps an owning loader to the layout used to extract the binary.
func loaderKind(owner address.Address) (types.Loader, bool) {
	switch owner {
	case BPFLoaderUpgradeable:
		return types.LoaderUpgradeable, true
	case BPFLoaderV4:
		return types.LoaderV4, true
	case BPFLoader2, BPFLoader1:
		return types.LoaderLegacy, true
	}
	return "", false
}

// programDataAddress decodes the program account of an upgradeable program.
func programDataAddress(data []byte) (address.Address, error) {
	if len(data) < upgradeableProgramSize {
		return address.Address{}, fmt.Errorf("%w: program account is %d bytes", ErrMalformedProgram, len(data))
	}
	if tag := binary.LittleEndian.Uint32(data[:4]); tag != upgradeableProgramTag {
		return address.Address{}, fmt.Errorf("%w: unexpected program account state %d", ErrMalformedProgram, tag)
	}
	return address.FromBytes(data[4:upgradeableProgramSize])
}

// programDataBinary strips the header of an upgradeable programdata account.
func programDataBinary(data []byte) ([]byte, error) {
	if len(data) < programDataHeaderSize {
		return nil, fmt.Errorf("%w: programdata account is %d bytes", ErrMalformedProgram, len(data))
	}
	if tag := binary.LittleEndian.Uint32(data[:4]); tag != upgradeableProgramDataTag {
		return nil, fmt.Errorf("%w: unexpected programdata state %d", ErrMalformedProgram, tag)
	}
	return data[programDataHeaderSize:], nil
}

func loaderV4Binary(data []byte) ([]byte, error) {
	if len(data) < loaderV4HeaderSize {
		return nil, fmt.Errorf("%w: loader-v4 account is %d bytes", ErrMalformedProgram, len(data))
	}
	return data[loaderV4HeaderSize:], nil
}
