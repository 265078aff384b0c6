// Package protocol describes MD simulation protocols as a closed set of
// variants: minimisation, equilibration, production and a custom
// configuration file supplied by the user.
package protocol

import (
	"fmt"
	"math"
	"os"

	"github.com/mattjoyce/mdrun/internal/errdefs"
	"github.com/mattjoyce/mdrun/internal/units"
)

// Kind names a protocol variant.
type Kind string

const (
	KindMinimisation  Kind = "minimisation"
	KindEquilibration Kind = "equilibration"
	KindProduction    Kind = "production"
	KindCustom        Kind = "custom"
)

// Protocol is implemented only by the variants in this package.
type Protocol interface {
	Kind() Kind
	isProtocol()
}

// Minimisation is an energy minimisation for a fixed number of steps.
type Minimisation struct {
	Steps int `yaml:"steps"`
}

// Equilibration heats (or cools) the system between two temperatures.
type Equilibration struct {
	Runtime          units.Time `yaml:"runtime"`
	Timestep         units.Time `yaml:"timestep"`
	TemperatureStart float64    `yaml:"temperature_start"` // kelvin
	TemperatureEnd   float64    `yaml:"temperature_end"`   // kelvin
	RestrainBackbone bool       `yaml:"restrain_backbone,omitempty"`
}

// Production is an NVT/NPT production run at constant temperature.
type Production struct {
	Runtime        units.Time `yaml:"runtime"`
	Timestep       units.Time `yaml:"timestep"`
	Temperature    float64    `yaml:"temperature"` // kelvin
	ReportInterval int        `yaml:"report_interval"`
	Pressure       float64    `yaml:"pressure,omitempty"` // bar, 0 means NVT
}

// Custom points at an engine-specific configuration file used verbatim.
type Custom struct {
	ConfigPath string `yaml:"config"`
}

func (Minimisation) Kind() Kind  { return KindMinimisation }
func (Equilibration) Kind() Kind { return KindEquilibration }
func (Production) Kind() Kind    { return KindProduction }
func (Custom) Kind() Kind        { return KindCustom }

func (Minimisation) isProtocol()  {}
func (Equilibration) isProtocol() {}
func (Production) isProtocol()    {}
func (Custom) isProtocol()        {}

// Defaults for new protocols.
const (
	DefaultMinimisationSteps = 10000
	DefaultTemperature       = 300.0
	DefaultReportInterval    = 100
)

// NewMinimisation returns a minimisation with the default step count.
func NewMinimisation() Minimisation {
	return Minimisation{Steps: DefaultMinimisationSteps}
}

// NewEquilibration returns a 0.2 ns equilibration at 300 K with a 2 fs step.
func NewEquilibration() Equilibration {
	return Equilibration{
		Runtime:          units.MustTime(0.2, "ns"),
		Timestep:         units.MustTime(2, "fs"),
		TemperatureStart: DefaultTemperature,
		TemperatureEnd:   DefaultTemperature,
	}
}

// NewProduction returns a 1 ns production run at 300 K with a 2 fs step.
func NewProduction() Production {
	return Production{
		Runtime:        units.MustTime(1, "ns"),
		Timestep:       units.MustTime(2, "fs"),
		Temperature:    DefaultTemperature,
		ReportInterval: DefaultReportInterval,
	}
}

// NewCustom wraps a path to an engine configuration file.
func NewCustom(path string) (Custom, error) {
	if path == "" {
		return Custom{}, errdefs.InvalidArgument("protocol", "custom configuration path is empty")
	}
	return Custom{ConfigPath: path}, nil
}

// FromValue accepts either a Protocol or a string path to a custom
// configuration file. Any other value is an invalid argument.
func FromValue(v any) (Protocol, error) {
	switch p := v.(type) {
	case Protocol:
		return p, nil
	case string:
		return NewCustom(p)
	default:
		return nil, errdefs.InvalidArgument("protocol", "must be a protocol or the path to a custom configuration file, got %T", v)
	}
}

// Steps returns the number of integration steps a protocol performs.
// Custom protocols report zero.
func Steps(p Protocol) int {
	switch v := p.(type) {
	case Minimisation:
		return v.Steps
	case Equilibration:
		return stepsFor(v.Runtime, v.Timestep)
	case Production:
		return stepsFor(v.Runtime, v.Timestep)
	default:
		return 0
	}
}

func stepsFor(runtime, timestep units.Time) int {
	if timestep.IsZero() {
		return 0
	}
	return int(math.Ceil(runtime.Div(timestep) - 1e-9))
}

// Validate checks a protocol's fields for obviously invalid values.
func Validate(p Protocol) error {
	switch v := p.(type) {
	case Minimisation:
		if v.Steps <= 0 {
			return errdefs.InvalidArgument("steps", "must be positive, got %d", v.Steps)
		}
	case Equilibration:
		if err := validateTiming(v.Runtime, v.Timestep); err != nil {
			return err
		}
		if v.TemperatureStart < 0 || v.TemperatureEnd < 0 {
			return errdefs.InvalidArgument("temperature", "must be non-negative")
		}
	case Production:
		if err := validateTiming(v.Runtime, v.Timestep); err != nil {
			return err
		}
		if v.Temperature < 0 {
			return errdefs.InvalidArgument("temperature", "must be non-negative")
		}
		if v.ReportInterval < 0 {
			return errdefs.InvalidArgument("report_interval", "must be non-negative")
		}
	case Custom:
		info, err := os.Stat(v.ConfigPath)
		if err != nil {
			return fmt.Errorf("custom configuration file: %w", err)
		}
		if info.IsDir() {
			return errdefs.InvalidArgument("protocol", "custom configuration %s is a directory", v.ConfigPath)
		}
	case nil:
		return errdefs.InvalidArgument("protocol", "is nil")
	}
	return nil
}

func validateTiming(runtime, timestep units.Time) error {
	if runtime.IsZero() {
		return errdefs.InvalidArgument("runtime", "must be positive")
	}
	if timestep.IsZero() {
		return errdefs.InvalidArgument("timestep", "must be positive")
	}
	if timestep.Compare(runtime) > 0 {
		return errdefs.InvalidArgument("timestep", "%s exceeds runtime %s", timestep, runtime)
	}
	return nil
}
