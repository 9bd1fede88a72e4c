package util

import "golang.org/x/sync/errgroup"

// SafeSetLimit bounds the errgroup to limit concurrent goroutines. A limit below one is
// raised to one.
func SafeSetLimit(g *errgroup.Group, limit int) {
	if limit < 1 {
		limit = 1
	}

	g.SetLimit(limit)
}
