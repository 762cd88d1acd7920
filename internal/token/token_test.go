package token

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	id := Identity{UserID: uuid.New(), CharacterID: uuid.New()}
	parsed, err := ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIdentityRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"no-separator",
		"not-a-uuid:" + uuid.New().String(),
		uuid.New().String() + ":not-a-uuid",
	} {
		_, err := ParseIdentity(s)
		assert.Error(t, err, "input %q", s)
	}
}
