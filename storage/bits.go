package storage

import (
	"math"

	"github.com/pagefiledb/pagefile/internal/util"
)

var errShortBuffer = util.New(util.KindFileCorrupted, "truncated value buffer")

func doubleBits(f float64) uint64 { return math.Float64bits(f) }
func bitsToDouble(u uint64) float64 { return math.Float64frombits(u) }
