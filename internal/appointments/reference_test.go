package appointments

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReferenceShape(t *testing.T) {
	ref := NewReference()
	assert.Len(t, ref, referenceLength)
	for _, r := range ref {
		assert.True(t, strings.ContainsRune(referenceAlphabet, r), "unexpected rune %q", r)
	}
}

func TestNewReferenceAvoidsAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 200; i++ {
		ref := NewReference()
		assert.NotContains(t, ref, "0")
		assert.NotContains(t, ref, "O")
		assert.NotContains(t, ref, "1")
		assert.NotContains(t, ref, "I")
		assert.NotContains(t, ref, "L")
	}
}

func TestNewReferenceVaries(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		seen[NewReference()] = struct{}{}
	}
	// With a 31^8 space, 100 draws colliding would point at a broken generator.
	assert.Greater(t, len(seen), 95)
}
