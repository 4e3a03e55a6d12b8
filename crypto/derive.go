package crypto

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveProgramAddress computes the control identity a program uses to sign
// for the custody accounts it holds. The address is the trailing 20 bytes of
// keccak256(programID || seed); nobody holds a private key for it, so only
// the program itself can present it as an authority.
func DeriveProgramAddress(programID []byte, seed string) [AddressLength]byte {
	digest := crypto.Keccak256(programID, []byte(seed))
	var out [AddressLength]byte
	copy(out[:], digest[len(digest)-AddressLength:])
	return out
}
