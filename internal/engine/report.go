package engine

// CandidateStatus describes whether a single candidate executable resolves.
type CandidateStatus struct {
	Exe   string `json:"exe"`
	GPU   bool   `json:"gpu"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// PackageStatus summarises one package's availability.
type PackageStatus struct {
	Package    string            `json:"package"`
	Formats    []string          `json:"formats"`
	Selected   string            `json:"selected,omitempty"` // path the resolver would pick
	Candidates []CandidateStatus `json:"candidates"`
}

// Available reports whether any candidate resolved.
func (s PackageStatus) Available() bool { return s.Selected != "" }

// Report checks every candidate of every package, in registry order, using
// the same lookup rules as Resolve.
func (r *Resolver) Report() []PackageStatus {
	pkgs := Packages()
	out := make([]PackageStatus, 0, len(pkgs))
	for _, name := range PackageNames() {
		status := PackageStatus{
			Package: name,
			Formats: FormatsFor(name),
		}
		for _, c := range pkgs[name] {
			path, found := r.locate(name, c.Exe)
			status.Candidates = append(status.Candidates, CandidateStatus{
				Exe:   c.Exe,
				GPU:   c.GPU,
				Path:  path,
				Found: found,
			})
			if found && status.Selected == "" {
				status.Selected = path
			}
		}
		out = append(out, status)
	}
	return out
}
