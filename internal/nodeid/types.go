package nodeid

// Binding is a single axis=label pair of an instance identifier.
type Binding struct {
	Axis  string
	Label string
}

// Address identifies one job instance.
type Address struct {
	Job      string
	Bindings []Binding
}

// New creates an Address for a job and its ordered bindings.
func New(job string, bindings ...Binding) Address {
	return Address{Job: job, Bindings: bindings}
}
