package model

// PreTime is the time, in milliseconds, a task spends before its effective work starts.
type PreTime struct {
	Pre  float64
	Read float64
	Comp float64
}

// EffectTime is the time, in milliseconds, a task spends on its effective work.
type EffectTime struct {
	Read1 float64
	Read2 float64
	Comp  float64
	Write float64
	Post  float64
}

// Profile is the per-phase breakdown of one task execution, or the average of several.
type Profile struct {
	Pre    PreTime
	Effect EffectTime
}

func (p Profile) Add(other Profile) Profile {
	return Profile{
		Pre: PreTime{
			Pre:  p.Pre.Pre + other.Pre.Pre,
			Read: p.Pre.Read + other.Pre.Read,
			Comp: p.Pre.Comp + other.Pre.Comp,
		},
		Effect: EffectTime{
			Read1: p.Effect.Read1 + other.Effect.Read1,
			Read2: p.Effect.Read2 + other.Effect.Read2,
			Comp:  p.Effect.Comp + other.Effect.Comp,
			Write: p.Effect.Write + other.Effect.Write,
			Post:  p.Effect.Post + other.Effect.Post,
		},
	}
}

func (p Profile) Div(k float64) Profile {
	return Profile{
		Pre: PreTime{
			Pre:  p.Pre.Pre / k,
			Read: p.Pre.Read / k,
			Comp: p.Pre.Comp / k,
		},
		Effect: EffectTime{
			Read1: p.Effect.Read1 / k,
			Read2: p.Effect.Read2 / k,
			Comp:  p.Effect.Comp / k,
			Write: p.Effect.Write / k,
			Post:  p.Effect.Post / k,
		},
	}
}

// PreTotal is the time spent before the effective work starts.
func (p Profile) PreTotal() float64 {
	return p.Pre.Pre + p.Pre.Read + p.Pre.Comp
}

// TotalTime excludes post-processing.
func (p Profile) TotalTime() float64 {
	return p.PreTotal() + p.Effect.Read1 + p.Effect.Read2 + p.Effect.Comp + p.Effect.Write
}

// ChargeTime is the time billed for the task. I/O phases whose edge stays in shared memory are capped
// at ioCap since waiting on a co-located peer is not useful work.
func (p Profile) ChargeTime(read1Local, read2Local, writeLocal bool, ioCap float64) float64 {
	charge := func(t float64, local bool) float64 {
		if local && t > ioCap {
			return ioCap
		}
		return t
	}
	return p.PreTotal() + p.Effect.Comp +
		charge(p.Effect.Read1, read1Local) +
		charge(p.Effect.Read2, read2Local) +
		charge(p.Effect.Write, writeLocal)
}
