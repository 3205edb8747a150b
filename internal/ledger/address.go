package ledger

import (
	"fmt"

	"github.com/gabapcia/walletsync/internal/pkg/types"
	"github.com/gabapcia/walletsync/internal/pkg/validator"
)

// Well-known program and mint addresses.
const (
	SystemProgram    = "11111111111111111111111111111111"
	TokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	NativeMint       = "So11111111111111111111111111111111111111112"
)

// TokenPrograms lists the programs whose token accounts are discovered.
var TokenPrograms = []string{TokenProgram, Token2022Program}

// DefaultExcludedOwners are balance owners never attributed to a wallet.
func DefaultExcludedOwners() types.Set[string] {
	return types.NewSet(SystemProgram, TokenProgram, Token2022Program)
}

// ValidateAddress checks that address is a base58 encoded 32-byte public key.
func ValidateAddress(address string) error {
	if !validator.IsPublicKey(address) {
		return fmt.Errorf("%w: invalid address %q", validator.ErrValidationFailed, address)
	}

	return nil
}

// ShortAddress renders address as its first and last four characters.
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}

	return address[:4] + "…" + address[len(address)-4:]
}
