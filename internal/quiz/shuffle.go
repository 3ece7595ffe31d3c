package quiz

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
)

// Shuffle returns a Fisher-Yates permutation of questions seeded from seed.
// The input slice is never modified. The same seed always yields the same
// order, so a resumed session shows questions exactly as before.
func Shuffle(questions []curriculum.Question, seed string) []curriculum.Question {
	out := append([]curriculum.Question(nil), questions...)

	sum := blake2b.Sum256([]byte(seed))
	rng := rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))

	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
