// Package model fits and evaluates the per-stage performance model: for every execution phase the time
// a task takes is modelled as a/d + b, where d is the degree of parallelism of the stage.
package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// DefaultShmRatio is how much faster a phase is when its edge stays in shared memory.
const DefaultShmRatio = 50

const (
	phasePre = iota
	phaseRead1
	phaseRead2
	phaseComp
	phaseWrite
	numPhases
)

// ErrDegenerateSamples is returned when the samples cannot determine a curve.
var ErrDegenerateSamples = errors.New("at least two samples at distinct degrees are required")

// Curve is time = A/d + B, in milliseconds.
type Curve struct {
	A float64
	B float64
}

func (c Curve) Predict(degree int) float64 {
	return c.A/float64(degree) + c.B
}

type PerformanceModel struct {
	Pre   Curve
	Read1 Curve
	Read2 Curve
	Comp  Curve
	Write Curve
	// Zero means DefaultShmRatio.
	ShmRatio float64
}

func (m *PerformanceModel) curves() [numPhases]Curve {
	return [numPhases]Curve{m.Pre, m.Read1, m.Read2, m.Comp, m.Write}
}

func (m *PerformanceModel) shmWeight() float64 {
	if m.ShmRatio > 0 {
		return 1 / m.ShmRatio
	}
	return 1.0 / DefaultShmRatio
}

// PredictPartialFactor returns the coefficient of 1/d in the time predicted for mode.
func (m *PerformanceModel) PredictPartialFactor(mode ExecMode) float64 {
	w := mode.weights(m.shmWeight())
	factor := 0.0
	for i, c := range m.curves() {
		factor += w[i] * c.A
	}
	return factor
}

// PredictTime returns the time, in milliseconds, a task of a stage running with degree tasks spends on
// the phases selected by mode.
func (m *PerformanceModel) PredictTime(mode ExecMode, degree int) float64 {
	w := mode.weights(m.shmWeight())
	t := 0.0
	for i, c := range m.curves() {
		t += w[i] * c.Predict(degree)
	}
	return t
}

// PredictTotalTime returns the time of every phase with nothing discounted.
func (m *PerformanceModel) PredictTotalTime(degree int) float64 {
	t := 0.0
	for _, c := range m.curves() {
		t += c.Predict(degree)
	}
	return t
}

// Fit fits the model to profiles, where profiles[i] was measured at degrees[i].
// The read2 curve is only fit when the stage has a second input, i.e. the first sample has a read2 time.
func Fit(degrees []int, profiles []Profile) (*PerformanceModel, error) {
	if len(degrees) != len(profiles) {
		return nil, errors.Wrapf(ErrDegenerateSamples, "%d degrees but %d profiles", len(degrees), len(profiles))
	}
	if len(degrees) < 2 {
		return nil, errors.Wrapf(ErrDegenerateSamples, "got %d samples", len(degrees))
	}
	distinct := false
	for _, d := range degrees {
		if d <= 0 {
			return nil, errors.Errorf("invalid sample degree %d", d)
		}
		if d != degrees[0] {
			distinct = true
		}
	}
	if !distinct {
		return nil, errors.Wrapf(ErrDegenerateSamples, "all samples taken at degree %d", degrees[0])
	}

	x := make([]float64, len(degrees))
	for i, d := range degrees {
		x[i] = 1 / float64(d)
	}
	fit := func(phase func(Profile) float64) Curve {
		y := make([]float64, len(profiles))
		for i, p := range profiles {
			y[i] = phase(p)
		}
		b, a := stat.LinearRegression(x, y, nil, false)
		return Curve{A: a, B: b}
	}

	m := &PerformanceModel{
		Pre:   fit(Profile.PreTotal),
		Read1: fit(func(p Profile) float64 { return p.Effect.Read1 }),
		Comp:  fit(func(p Profile) float64 { return p.Effect.Comp }),
		Write: fit(func(p Profile) float64 { return p.Effect.Write }),
	}
	if profiles[0].Effect.Read2 > 0 {
		m.Read2 = fit(func(p Profile) float64 { return p.Effect.Read2 })
	}
	return m, nil
}
