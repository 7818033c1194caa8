package core

import (
	"cmp"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// BlankLabel names the pie slice counting empty cells.
const BlankLabel = "(blank)"

// PieSlice is one distinct value of a column.
type PieSlice struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// PieChartData is the distribution of a single column.
type PieChartData struct {
	Column string     `json:"column"`
	Total  int        `json:"total"`
	Slices []PieSlice `json:"slices"`
}

// PieChart counts the distinct values of column. Slices are ordered by
// count, largest first, then by label.
func PieChart(t *Table, column string) (*PieChartData, error) {
	if err := requireColumn(t, column); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range t.Rows {
		label := r[column].String()
		if label == "" {
			label = BlankLabel
		}
		counts[label]++
	}

	out := &PieChartData{Column: column, Total: t.Len(), Slices: make([]PieSlice, 0, len(counts))}
	for label, n := range counts {
		out.Slices = append(out.Slices, PieSlice{
			Label: label,
			Count: n,
			Share: float64(n) / float64(t.Len()),
		})
	}
	slices.SortFunc(out.Slices, func(a, b PieSlice) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out, nil
}

// LinePoint is one plotted row.
type LinePoint struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// LineSummary describes the y values of a line chart.
type LineSummary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
}

// LineTrend is the least-squares line y = Intercept + Slope*x. For date x
// values, x is measured in days since the Unix epoch.
type LineTrend struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
	RSquared  float64 `json:"rSquared"`
}

// LineChartData is a y-over-x series.
type LineChartData struct {
	X       string       `json:"x"`
	Y       string       `json:"y"`
	Points  []LinePoint  `json:"points"`
	Summary *LineSummary `json:"summary,omitempty"`
	Trend   *LineTrend   `json:"trend,omitempty"`
}

// LineChart plots y against x in row order. Rows whose y value is not
// numeric are skipped. A trend is fitted only when every plotted x is a
// number or a date.
func LineChart(t *Table, x, y string) (*LineChartData, error) {
	if err := requireColumn(t, x); err != nil {
		return nil, err
	}
	if err := requireColumn(t, y); err != nil {
		return nil, err
	}

	out := &LineChartData{X: x, Y: y, Points: []LinePoint{}}
	var xs, ys []float64
	numericX := true
	for _, r := range t.Rows {
		yv, ok := r[y].Float()
		if !ok {
			continue
		}
		xv := r[x]
		out.Points = append(out.Points, LinePoint{X: xv.String(), Y: yv})
		ys = append(ys, yv)
		if f, ok := axisValue(xv); ok {
			xs = append(xs, f)
		} else {
			numericX = false
		}
	}
	if len(ys) == 0 {
		return out, nil
	}

	summary, err := summarize(ys)
	if err != nil {
		return nil, err
	}
	out.Summary = summary
	if numericX && len(xs) >= 2 {
		out.Trend = fitTrend(xs, ys)
	}
	return out, nil
}

// axisValue converts an x cell to a position on a numeric axis.
func axisValue(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindDate:
		return float64(v.Time.Unix()) / 86400, true
	default:
		return 0, false
	}
}

func summarize(ys []float64) (*LineSummary, error) {
	data := stats.Float64Data(ys)
	minV, err := data.Min()
	if err != nil {
		return nil, err
	}
	maxV, err := data.Max()
	if err != nil {
		return nil, err
	}
	mean, err := data.Mean()
	if err != nil {
		return nil, err
	}
	median, err := data.Median()
	if err != nil {
		return nil, err
	}
	sd, err := data.StandardDeviation()
	if err != nil {
		return nil, err
	}
	return &LineSummary{
		Count:  len(ys),
		Min:    minV,
		Max:    maxV,
		Mean:   mean,
		Median: median,
		StdDev: sd,
	}, nil
}

// fitTrend returns nil when the fit is undefined, e.g. all x are equal.
func fitTrend(xs, ys []float64) *LineTrend {
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return nil
	}
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) {
		r2 = 0
	}
	return &LineTrend{Intercept: alpha, Slope: beta, RSquared: r2}
}
