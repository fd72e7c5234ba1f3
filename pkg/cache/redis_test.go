package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeySkipsBlankParts(t *testing.T) {
	assert.Equal(t, "journal-portal:submission:abc", Key("submission", " ", "abc"))
	assert.Equal(t, "journal-portal", Key())
}
