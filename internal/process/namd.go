package process

import (
	"context"
	"fmt"

	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/protocol"
)

// Namd drives namd2 with a single configuration file argument.
type Namd struct {
	*base
}

var _ Process = (*Namd)(nil)

// NewNamd prepares a NAMD run with <name>.psf, <name>.pdb and <name>.cfg.
func NewNamd(ctx context.Context, sys *molecule.System, proto protocol.Protocol, exe string, opts Options) (*Namd, error) {
	b, err := newBase(ctx, engine.Namd, exe, sys, proto, opts)
	if err != nil {
		return nil, err
	}
	p := &Namd{base: b}
	if err := p.setup(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Namd) setup() error {
	if err := stageInput(p.system, p.path(".psf"), "PSF"); err != nil {
		return err
	}
	if err := stageInput(p.system, p.path(".pdb"), "PDB"); err != nil {
		return err
	}

	if c, ok := p.protocol.(protocol.Custom); ok {
		if err := copyFile(c.ConfigPath, p.path(".cfg")); err != nil {
			return fmt.Errorf("stage custom config: %w", err)
		}
	} else if err := writeConfig(p.path(".cfg"), p.config()); err != nil {
		return err
	}

	p.steps = [][]string{{p.name + ".cfg"}}
	return p.writeReadme()
}

// config renders the NAMD configuration for the protocol.
func (p *Namd) config() []string {
	kv := func(k, v string) string { return fmt.Sprintf("%-20s %s", k, v) }

	lines := []string{
		kv("structure", p.name+".psf"),
		kv("coordinates", p.name+".pdb"),
		kv("outputName", p.name+"_out"),
		kv("paraTypeCharmm", "on"),
		kv("exclude", "scaled1-4"),
		kv("cutoff", "12.0"),
		kv("switching", "on"),
		kv("switchdist", "10.0"),
		kv("pairlistdist", "14.0"),
	}
	if p.seed != nil {
		lines = append(lines, kv("seed", fmt.Sprint(*p.seed)))
	}

	switch v := p.protocol.(type) {
	case protocol.Minimisation:
		lines = append(lines,
			kv("temperature", "0"),
			kv("minimize", fmt.Sprint(v.Steps)),
		)

	case protocol.Equilibration:
		nsteps := protocol.Steps(v)
		lines = append(lines,
			kv("timestep", formatFloat(v.Timestep.Femtoseconds().Magnitude)),
			kv("temperature", formatFloat(v.TemperatureStart)),
			kv("langevin", "on"),
			kv("langevinDamping", "1"),
			kv("langevinTemp", formatFloat(v.TemperatureEnd)),
		)
		if v.TemperatureStart != v.TemperatureEnd {
			const freq = 1000
			incr := (v.TemperatureEnd - v.TemperatureStart) / float64(max(nsteps/freq, 1))
			lines = append(lines,
				kv("reassignFreq", fmt.Sprint(freq)),
				kv("reassignTemp", formatFloat(v.TemperatureStart)),
				kv("reassignIncr", formatFloat(incr)),
				kv("reassignHold", formatFloat(v.TemperatureEnd)),
			)
		}
		lines = append(lines, kv("run", fmt.Sprint(nsteps)))

	case protocol.Production:
		lines = append(lines,
			kv("timestep", formatFloat(v.Timestep.Femtoseconds().Magnitude)),
			kv("temperature", formatFloat(v.Temperature)),
			kv("langevin", "on"),
			kv("langevinDamping", "1"),
			kv("langevinTemp", formatFloat(v.Temperature)),
			kv("dcdfreq", fmt.Sprint(v.ReportInterval)),
			kv("outputEnergies", fmt.Sprint(v.ReportInterval)),
		)
		if v.Pressure > 0 {
			lines = append(lines,
				kv("langevinPiston", "on"),
				kv("langevinPistonTarget", formatFloat(v.Pressure*1.01325)),
			)
		}
		lines = append(lines, kv("run", fmt.Sprint(protocol.Steps(v))))
	}
	return lines
}
