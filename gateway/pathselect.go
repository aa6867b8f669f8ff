package gateway

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// selectPath draws a uniformly random sample of n nodes without
// replacement from the cache's current ACTIVE snapshot. If fewer than n
// nodes are cached, it returns an error and the caller aborts the circuit
// silently, per the roster-inconsistency error kind.
func (g *Gateway) selectPath(n int) ([]cachedNode, error) {
	candidates := g.cache.snapshot()
	if len(candidates) < n {
		return nil, fmt.Errorf("gateway: roster holds %d active nodes, need %d", len(candidates), n)
	}

	// Partial Fisher-Yates: shuffle only the first n positions, each swap
	// drawn from crypto/rand for an unbiased, non-predictable path.
	for i := 0; i < n; i++ {
		j, err := randIntn(len(candidates) - i)
		if err != nil {
			return nil, err
		}
		k := i + j
		candidates[i], candidates[k] = candidates[k], candidates[i]
	}
	return candidates[:n], nil
}

func randIntn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("gateway: crypto/rand: %w", err)
	}
	return int(v.Int64()), nil
}
