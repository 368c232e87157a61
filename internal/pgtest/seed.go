package pgtest

import (
	"encoding/binary"
	"math/rand"
	"testing"

	faker "github.com/go-faker/faker/v4"
)

// seededReader is a deterministic io.Reader for faker's crypto source.
type seededReader struct {
	r *rand.Rand
}

func (s *seededReader) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], uint64(s.r.Int63()))
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// SeedFaker makes faker-generated UUIDs reproducible and logs the seed.
func SeedFaker(t testing.TB, seed int64) {
	t.Helper()
	faker.SetCryptoSource(&seededReader{r: rand.New(rand.NewSource(seed))})
	t.Logf("faker seed %d", seed)
}
