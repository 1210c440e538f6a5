package profiling

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/elasticsched/internal/scheduler/model"
)

// fields lists the record keys in the order they are written.
var fields = []struct {
	key   string
	value func(p *model.Profile) *float64
}{
	{"PreTime.tpre", func(p *model.Profile) *float64 { return &p.Pre.Pre }},
	{"PreTime.tread", func(p *model.Profile) *float64 { return &p.Pre.Read }},
	{"PreTime.tcomp", func(p *model.Profile) *float64 { return &p.Pre.Comp }},
	{"EffectTime.tread1", func(p *model.Profile) *float64 { return &p.Effect.Read1 }},
	{"EffectTime.tread2", func(p *model.Profile) *float64 { return &p.Effect.Read2 }},
	{"EffectTime.tcomp", func(p *model.Profile) *float64 { return &p.Effect.Comp }},
	{"EffectTime.twrite", func(p *model.Profile) *float64 { return &p.Effect.Write }},
	{"EffectTime.tpost", func(p *model.Profile) *float64 { return &p.Effect.Post }},
}

const sampleKey = "Sample"

// Sample is the averaged profile of a stage at one sampled degree.
type Sample struct {
	Degree  int
	Profile model.Profile
}

// WriteProfile writes p as one "key value" line per phase, times in milliseconds.
func WriteProfile(w io.Writer, p model.Profile) error {
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%s %s\n", f.key, strconv.FormatFloat(*f.value(&p), 'f', -1, 64)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// ReadProfile parses a record written by WriteProfile. Phases that are absent are zero.
func ReadProfile(r io.Reader) (model.Profile, error) {
	var p model.Profile
	err := parse(r, func(key string, value float64) error {
		if key == sampleKey {
			return errors.New("unexpected sample header in a single profile")
		}
		return set(&p, key, value)
	})
	return p, err
}

// WriteSamples writes every sample as a "Sample <degree>" header followed by its profile.
func WriteSamples(w io.Writer, samples []Sample) error {
	for _, s := range samples {
		if _, err := fmt.Fprintf(w, "%s %d\n", sampleKey, s.Degree); err != nil {
			return errors.WithStack(err)
		}
		if err := WriteProfile(w, s.Profile); err != nil {
			return err
		}
	}
	return nil
}

func ReadSamples(r io.Reader) ([]Sample, error) {
	var samples []Sample
	err := parse(r, func(key string, value float64) error {
		if key == sampleKey {
			samples = append(samples, Sample{Degree: int(value)})
			return nil
		}
		if len(samples) == 0 {
			return errors.Errorf("%s before the first sample header", key)
		}
		return set(&samples[len(samples)-1].Profile, key, value)
	})
	return samples, err
}

func parse(r io.Reader, record func(key string, value float64) error) error {
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) != 2 {
			return errors.Errorf("line %d: expected \"key value\" but got %q", line, text)
		}
		value, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if err := record(parts[0], value); err != nil {
			return errors.WithMessagef(err, "line %d", line)
		}
	}
	return errors.WithStack(scanner.Err())
}

func set(p *model.Profile, key string, value float64) error {
	for _, f := range fields {
		if f.key == key {
			*f.value(p) = value
			return nil
		}
	}
	return errors.Errorf("unknown profile key %q", key)
}
