package model

import "fmt"

// ExecMode selects which phases are charged when predicting the time of a stage, and which of them are
// discounted because their edge stays in shared memory.
type ExecMode int

const (
	ReadComp ExecMode = iota
	CompWrite
	R1CompWrite
	R2CompWrite
	RCW
	OnlyWrite
	Pre
	OnlyRead
	OnlyComp
	R1Comp
	R2Comp
	OnlyR1
	OptComp
)

var execModeNames = map[ExecMode]string{
	ReadComp:    "ReadComp",
	CompWrite:   "CompWrite",
	R1CompWrite: "R1CompWrite",
	R2CompWrite: "R2CompWrite",
	RCW:         "RCW",
	OnlyWrite:   "OnlyWrite",
	Pre:         "Pre",
	OnlyRead:    "OnlyRead",
	OnlyComp:    "OnlyComp",
	R1Comp:      "R1Comp",
	R2Comp:      "R2Comp",
	OnlyR1:      "OnlyR1",
	OptComp:     "OptComp",
}

func (m ExecMode) String() string {
	if name, ok := execModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ExecMode(%d)", int(m))
}

// phaseWeights is the weight of each phase, in the order pre, read1, read2, comp, write.
type phaseWeights [numPhases]float64

// weights returns the phase weights of mode. s is the weight of a phase served from shared memory.
func (m ExecMode) weights(s float64) phaseWeights {
	switch m {
	case ReadComp:
		return phaseWeights{0, 1, 1, 1, 0}
	case CompWrite:
		return phaseWeights{0, s, s, 1, 1}
	case R1CompWrite:
		return phaseWeights{0, 1, s, 1, 1}
	case R2CompWrite:
		return phaseWeights{0, s, 1, 1, 1}
	case RCW:
		return phaseWeights{0, 1, 1, 1, 1}
	case OnlyWrite:
		return phaseWeights{0, 0, 0, 0, 1}
	case Pre:
		return phaseWeights{1, 0, 0, 0, 0}
	case OnlyRead:
		return phaseWeights{0, 1, 1, 0, 0}
	case OnlyComp:
		return phaseWeights{0, 0, 0, 1, 0}
	case R1Comp:
		return phaseWeights{0, 1, s, 1, 0}
	case R2Comp:
		return phaseWeights{0, s, 1, 1, 0}
	case OnlyR1:
		return phaseWeights{0, 1, 0, 0, 0}
	case OptComp:
		return phaseWeights{0, s, s, 1, s}
	}
	panic(fmt.Sprintf("unknown exec mode %d", int(m)))
}
