package pgtest

import (
	"math/rand"
	"testing"

	faker "github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/assert"
)

func TestSeededReaderIsDeterministic(t *testing.T) {
	a := &seededReader{r: rand.New(rand.NewSource(7))}
	b := &seededReader{r: rand.New(rand.NewSource(7))}

	pa, pb := make([]byte, 13), make([]byte, 13)
	n, err := a.Read(pa)
	assert.NoError(t, err)
	assert.Equal(t, 13, n)
	_, _ = b.Read(pb)
	assert.Equal(t, pa, pb)
}

func TestSeedFakerRepeatsUUIDs(t *testing.T) {
	SeedFaker(t, 42)
	first := faker.UUIDHyphenated()
	SeedFaker(t, 42)
	assert.Equal(t, first, faker.UUIDHyphenated())
}
