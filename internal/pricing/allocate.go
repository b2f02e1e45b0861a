package pricing

import (
	"math/big"
	"sort"
)

// Allocate splits total across weights using largest-remainder rounding, so
// the shares always sum to exactly total. Each line first gets the floor of
// its proportional share; the leftover units go one each to the lines with
// the largest fractional remainders, later lines winning ties. When every
// weight is zero the total is split evenly.
//
// Products are computed with math/big because amount*weight can exceed int64.
func Allocate(total int64, weights []int64) []int64 {
	n := len(weights)
	if n == 0 {
		return nil
	}
	shares := make([]int64, n)
	if total <= 0 {
		return shares
	}

	w := weights
	var sum int64
	for _, v := range w {
		sum += max(v, 0)
	}
	if sum == 0 {
		w = make([]int64, n)
		for i := range w {
			w[i] = 1
		}
		sum = int64(n)
	}

	remainders := make([]int64, n)
	bigTotal := big.NewInt(total)
	bigSum := big.NewInt(sum)
	var allocated int64
	for i, v := range w {
		if v <= 0 {
			continue
		}
		q, r := new(big.Int).QuoRem(new(big.Int).Mul(bigTotal, big.NewInt(v)), bigSum, new(big.Int))
		shares[i] = q.Int64()
		remainders[i] = r.Int64()
		allocated += shares[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if remainders[ia] != remainders[ib] {
			return remainders[ia] > remainders[ib]
		}
		return ia > ib
	})

	for k := int64(0); k < total-allocated; k++ {
		shares[order[k]]++
	}
	return shares
}
