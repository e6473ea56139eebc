package appointments

import (
	"crypto/rand"
	"math/big"
)

// referenceAlphabet omits 0/O, 1/I/L so references survive being read out
// loud over the phone.
const referenceAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const referenceLength = 8

// NewReference generates a patient-facing appointment reference. Uniqueness
// is enforced by the appointments table; callers retry on collision.
func NewReference() string {
	max := big.NewInt(int64(len(referenceAlphabet)))
	b := make([]byte, referenceLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic("appointments: reference generation: " + err.Error())
		}
		b[i] = referenceAlphabet[n.Int64()]
	}
	return string(b)
}
