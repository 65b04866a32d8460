package artwork

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	hex, ok := Normalize("#7AA2F7")
	assert.True(t, ok)
	assert.Equal(t, "#7aa2f7", hex)

	_, ok = Normalize("not-a-color")
	assert.False(t, ok)
}

func TestMergePaletteDedupesAndCaps(t *testing.T) {
	existing := []string{"#ff0000", "#00ff00"}
	incoming := []string{"#fe0101", "#0000ff", "#ffffff", "#000000", "bogus"}

	merged := MergePalette(existing, incoming, 4)

	assert.Len(t, merged, 4)
	assert.Equal(t, "#ff0000", merged[0])
	// #fe0101 is perceptually the same red and must be dropped.
	assert.NotContains(t, merged, "#fe0101")
}

func TestDominant(t *testing.T) {
	dominant, ok := Dominant([]string{"#808080", "#ff0000", "#202020"})
	assert.True(t, ok)
	assert.Equal(t, "#ff0000", dominant)

	_, ok = Dominant([]string{"bogus"})
	assert.False(t, ok)
}
