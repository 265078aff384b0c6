package engine

import "sort"

// Supported MD package names.
const (
	Amber   = "AMBER"
	Gromacs = "GROMACS"
	Namd    = "NAMD"
)

// AmberHomeEnv names the AMBER installation root variable.
const AmberHomeEnv = "AMBERHOME"

// Candidate is an executable that may provide a package.
type Candidate struct {
	Exe string
	GPU bool
}

// Packages returns the package registry: each package's candidate
// executables in search order. GPU-capable builds are listed first.
// The returned map is a fresh copy.
func Packages() map[string][]Candidate {
	return map[string][]Candidate{
		Amber: {
			{Exe: "pmemd.cuda", GPU: true},
			{Exe: "pmemd", GPU: false},
			{Exe: "sander", GPU: false},
		},
		Gromacs: {
			{Exe: "gmx", GPU: true},
		},
		Namd: {
			{Exe: "namd2", GPU: false},
		},
	}
}

// Formats returns the format registry mapping a comma-joined file format pair
// to the package that reads it. Lookup is exact-match.
func Formats() map[string]string {
	return map[string]string{
		"PRM7,RST7":    Amber,
		"PRM7,RST":     Amber,
		"GroTop,Gro87": Gromacs,
		"PSF,PDB":      Namd,
	}
}

// PackageNames returns the registered package names in lexical order.
func PackageNames() []string {
	pkgs := Packages()
	names := make([]string, 0, len(pkgs))
	for name := range pkgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatsFor returns the format pairs handled by pkg, sorted.
func FormatsFor(pkg string) []string {
	var out []string
	for format, p := range Formats() {
		if p == pkg {
			out = append(out, format)
		}
	}
	sort.Strings(out)
	return out
}
