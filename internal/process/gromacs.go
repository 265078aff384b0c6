package process

import (
	"context"
	"fmt"

	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/protocol"
)

// Gromacs drives gmx. A run is two steps of one job: grompp builds the run
// input, then mdrun executes it.
type Gromacs struct {
	*base
}

var _ Process = (*Gromacs)(nil)

// NewGromacs prepares a GROMACS run with <name>.top, <name>.gro and <name>.mdp.
func NewGromacs(ctx context.Context, sys *molecule.System, proto protocol.Protocol, exe string, opts Options) (*Gromacs, error) {
	b, err := newBase(ctx, engine.Gromacs, exe, sys, proto, opts)
	if err != nil {
		return nil, err
	}
	p := &Gromacs{base: b}
	if err := p.setup(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Gromacs) setup() error {
	if err := stageInput(p.system, p.path(".top"), "GroTop"); err != nil {
		return err
	}
	if err := stageInput(p.system, p.path(".gro"), "Gro87"); err != nil {
		return err
	}

	if c, ok := p.protocol.(protocol.Custom); ok {
		if err := copyFile(c.ConfigPath, p.path(".mdp")); err != nil {
			return fmt.Errorf("stage custom config: %w", err)
		}
	} else if err := writeConfig(p.path(".mdp"), p.config()); err != nil {
		return err
	}

	p.steps = [][]string{
		{"grompp", "-f", p.name + ".mdp", "-c", p.name + ".gro", "-p", p.name + ".top", "-o", p.name + ".tpr"},
		{"mdrun", "-v", "-deffnm", p.name},
	}
	return p.writeReadme()
}

// config renders the .mdp parameter file for the protocol.
func (p *Gromacs) config() []string {
	seed := "-1"
	if p.seed != nil {
		seed = fmt.Sprint(*p.seed)
	}
	kv := func(k, v string) string { return fmt.Sprintf("%-24s = %s", k, v) }

	switch v := p.protocol.(type) {
	case protocol.Minimisation:
		return []string{
			"; Minimisation",
			kv("integrator", "steep"),
			kv("nsteps", fmt.Sprint(v.Steps)),
			kv("emtol", "1000.0"),
			kv("cutoff-scheme", "Verlet"),
			kv("coulombtype", "PME"),
		}

	case protocol.Equilibration:
		runtimePS := v.Runtime.Picoseconds().Magnitude
		lines := []string{
			"; Equilibration",
			kv("integrator", "md"),
			kv("nsteps", fmt.Sprint(protocol.Steps(v))),
			kv("dt", formatFloat(v.Timestep.Picoseconds().Magnitude)),
			kv("cutoff-scheme", "Verlet"),
			kv("coulombtype", "PME"),
			kv("constraints", "h-bonds"),
			kv("tcoupl", "v-rescale"),
			kv("tc-grps", "System"),
			kv("tau-t", "0.1"),
			kv("ref-t", formatFloat(v.TemperatureEnd)),
			kv("gen-vel", "yes"),
			kv("gen-temp", formatFloat(v.TemperatureStart)),
			kv("gen-seed", seed),
		}
		if v.RestrainBackbone {
			lines = append(lines, kv("define", "-DPOSRES"))
		}
		if v.TemperatureStart != v.TemperatureEnd {
			lines = append(lines,
				kv("annealing", "single"),
				kv("annealing-npoints", "2"),
				kv("annealing-time", "0 "+formatFloat(runtimePS)),
				kv("annealing-temp", formatFloat(v.TemperatureStart)+" "+formatFloat(v.TemperatureEnd)),
			)
		}
		return lines

	case protocol.Production:
		lines := []string{
			"; Production",
			kv("integrator", "md"),
			kv("nsteps", fmt.Sprint(protocol.Steps(v))),
			kv("dt", formatFloat(v.Timestep.Picoseconds().Magnitude)),
			kv("cutoff-scheme", "Verlet"),
			kv("coulombtype", "PME"),
			kv("constraints", "h-bonds"),
			kv("continuation", "yes"),
			kv("tcoupl", "v-rescale"),
			kv("tc-grps", "System"),
			kv("tau-t", "0.1"),
			kv("ref-t", formatFloat(v.Temperature)),
			kv("gen-seed", seed),
			kv("nstxout-compressed", fmt.Sprint(v.ReportInterval)),
			kv("nstenergy", fmt.Sprint(v.ReportInterval)),
			kv("nstlog", fmt.Sprint(v.ReportInterval)),
		}
		if v.Pressure > 0 {
			lines = append(lines,
				kv("pcoupl", "Parrinello-Rahman"),
				kv("tau-p", "2.0"),
				kv("ref-p", formatFloat(v.Pressure)),
				kv("compressibility", "4.5e-5"),
			)
		}
		return lines
	}
	return nil
}
