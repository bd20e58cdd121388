package apns

import "math/rand"

// randomSeed32 returns a random starting point for the default
// counter-based identifier supplier, so two Service instances in the
// same process don't hand out identical identifier sequences.
func randomSeed32() uint32 {
	return rand.Uint32()
}
