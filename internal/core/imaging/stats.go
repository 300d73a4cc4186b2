package imaging

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kirillkom/hdimage/internal/core/domain"
)

type GlobalStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Stats holds spatial statistics per (time, z, channel) and over the whole
// array. Standard deviations are population deviations.
type Stats struct {
	Mean   [][][]float64 `json:"mean"`
	Std    [][][]float64 `json:"std"`
	Min    [][][]float64 `json:"min"`
	Max    [][][]float64 `json:"max"`
	Global GlobalStats   `json:"global_stats"`
}

// ChannelStats is Stats restricted to one channel, indexed [time][z].
type ChannelStats struct {
	Channel int         `json:"channel"`
	Mean    [][]float64 `json:"mean"`
	Std     [][]float64 `json:"std"`
	Min     [][]float64 `json:"min"`
	Max     [][]float64 `json:"max"`
}

func Statistics(c *Canonical) Stats {
	shape := c.Shape()
	nt, nz, nc := shape[AxisTime], shape[AxisZ], shape[AxisChannel]

	out := Stats{
		Mean: newGrid(nt, nz, nc),
		Std:  newGrid(nt, nz, nc),
		Min:  newGrid(nt, nz, nc),
		Max:  newGrid(nt, nz, nc),
	}
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			for ch := 0; ch < nc; ch++ {
				p := c.plane(t, z, ch)
				mean, std := stat.PopMeanStdDev(p, nil)
				out.Mean[t][z][ch] = mean
				out.Std[t][z][ch] = std
				out.Min[t][z][ch] = floats.Min(p)
				out.Max[t][z][ch] = floats.Max(p)
			}
		}
	}

	mean, std := stat.PopMeanStdDev(c.data, nil)
	out.Global = GlobalStats{
		Mean: mean,
		Std:  std,
		Min:  floats.Min(c.data),
		Max:  floats.Max(c.data),
	}
	return out
}

// Channel selects one channel of the per-plane statistics.
func (s Stats) Channel(ch int) (ChannelStats, error) {
	if ch < 0 {
		return ChannelStats{}, domain.NewError(domain.ErrInvalidInput, "channel must be non-negative, got %d", ch)
	}
	out := ChannelStats{Channel: ch}
	for t := range s.Mean {
		var mean, std, lo, hi []float64
		for z := range s.Mean[t] {
			if ch >= len(s.Mean[t][z]) {
				return ChannelStats{}, domain.NewError(domain.ErrIndexOutOfRange,
					"channel index %d out of bounds (max: %d)", ch, len(s.Mean[t][z])-1)
			}
			mean = append(mean, s.Mean[t][z][ch])
			std = append(std, s.Std[t][z][ch])
			lo = append(lo, s.Min[t][z][ch])
			hi = append(hi, s.Max[t][z][ch])
		}
		out.Mean = append(out.Mean, mean)
		out.Std = append(out.Std, std)
		out.Min = append(out.Min, lo)
		out.Max = append(out.Max, hi)
	}
	return out, nil
}

func newGrid(nt, nz, nc int) [][][]float64 {
	grid := make([][][]float64, nt)
	for t := range grid {
		grid[t] = make([][]float64, nz)
		for z := range grid[t] {
			grid[t][z] = make([]float64, nc)
		}
	}
	return grid
}
