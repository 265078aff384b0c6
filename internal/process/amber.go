package process

import (
	"context"
	"fmt"

	"github.com/mattjoyce/mdrun/internal/engine"
	"github.com/mattjoyce/mdrun/internal/molecule"
	"github.com/mattjoyce/mdrun/internal/protocol"
)

// Amber drives pmemd, pmemd.cuda or sander.
type Amber struct {
	*base
}

var _ Process = (*Amber)(nil)

// NewAmber prepares an AMBER run: <name>.prm7, <name>.rst7 and the <name>.cfg
// mdin control file are written to the work dir.
func NewAmber(ctx context.Context, sys *molecule.System, proto protocol.Protocol, exe string, opts Options) (*Amber, error) {
	b, err := newBase(ctx, engine.Amber, exe, sys, proto, opts)
	if err != nil {
		return nil, err
	}
	p := &Amber{base: b}
	if err := p.setup(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Amber) setup() error {
	if err := stageInput(p.system, p.path(".prm7"), "PRM7"); err != nil {
		return err
	}
	if err := stageInput(p.system, p.path(".rst7"), "RST7", "RST"); err != nil {
		return err
	}

	if c, ok := p.protocol.(protocol.Custom); ok {
		if err := copyFile(c.ConfigPath, p.path(".cfg")); err != nil {
			return fmt.Errorf("stage custom config: %w", err)
		}
	} else if err := writeConfig(p.path(".cfg"), p.config()); err != nil {
		return err
	}

	p.steps = [][]string{p.args()}
	return p.writeReadme()
}

func (p *Amber) args() []string {
	args := []string{
		"-O",
		"-i", p.name + ".cfg",
		"-p", p.name + ".prm7",
		"-c", p.name + ".rst7",
		"-o", p.name + ".mdout",
		"-r", p.name + ".crd",
		"-inf", p.name + ".nrg",
	}
	switch v := p.protocol.(type) {
	case protocol.Minimisation:
	case protocol.Equilibration:
		if v.RestrainBackbone {
			args = append(args, "-ref", p.name+".rst7")
		}
		args = append(args, "-x", p.name+".nc")
	default:
		args = append(args, "-x", p.name+".nc")
	}
	return args
}

// config renders the mdin &cntrl namelist for the protocol.
func (p *Amber) config() []string {
	seed := "-1"
	if p.seed != nil {
		seed = fmt.Sprint(*p.seed)
	}

	switch v := p.protocol.(type) {
	case protocol.Minimisation:
		return []string{
			"Minimisation",
			" &cntrl",
			"  imin=1,",
			fmt.Sprintf("  maxcyc=%d,", v.Steps),
			fmt.Sprintf("  ncyc=%d,", min(v.Steps, 1000)),
			"  ntb=1,",
			"  cut=8.0,",
			"  ntpr=100,",
			" /",
		}

	case protocol.Equilibration:
		nsteps := protocol.Steps(v)
		lines := []string{
			"Equilibration",
			" &cntrl",
			"  imin=0,",
			"  irest=0,",
			"  ntx=1,",
			fmt.Sprintf("  nstlim=%d,", nsteps),
			fmt.Sprintf("  dt=%s,", formatFloat(v.Timestep.Picoseconds().Magnitude)),
			"  ntc=2,",
			"  ntf=2,",
			"  cut=8.0,",
			"  ntt=3,",
			"  gamma_ln=2.0,",
			fmt.Sprintf("  ig=%s,", seed),
			fmt.Sprintf("  tempi=%s,", formatFloat(v.TemperatureStart)),
			fmt.Sprintf("  temp0=%s,", formatFloat(v.TemperatureEnd)),
			"  ntpr=100,",
			"  ntwx=100,",
		}
		if v.RestrainBackbone {
			lines = append(lines, "  ntr=1,", "  restraint_wt=2.0,", "  restraintmask='@CA,C,O,N',")
		}
		if v.TemperatureStart != v.TemperatureEnd {
			lines = append(lines, "  nmropt=1,", " /",
				fmt.Sprintf(" &wt TYPE='TEMP0', ISTEP1=0, ISTEP2=%d, VALUE1=%s, VALUE2=%s /",
					nsteps, formatFloat(v.TemperatureStart), formatFloat(v.TemperatureEnd)),
				" &wt TYPE='END' /",
			)
			return lines
		}
		return append(lines, " /")

	case protocol.Production:
		lines := []string{
			"Production",
			" &cntrl",
			"  imin=0,",
			"  irest=1,",
			"  ntx=5,",
			fmt.Sprintf("  nstlim=%d,", protocol.Steps(v)),
			fmt.Sprintf("  dt=%s,", formatFloat(v.Timestep.Picoseconds().Magnitude)),
			"  ntc=2,",
			"  ntf=2,",
			"  cut=8.0,",
			"  ntt=3,",
			"  gamma_ln=2.0,",
			fmt.Sprintf("  ig=%s,", seed),
			fmt.Sprintf("  temp0=%s,", formatFloat(v.Temperature)),
			fmt.Sprintf("  ntpr=%d,", v.ReportInterval),
			fmt.Sprintf("  ntwx=%d,", v.ReportInterval),
		}
		if v.Pressure > 0 {
			lines = append(lines, "  ntb=2,", "  ntp=1,", fmt.Sprintf("  pres0=%s,", formatFloat(v.Pressure)))
		}
		return append(lines, " /")
	}
	return nil
}
