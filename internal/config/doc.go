// Package config defines the format-agnostic pipeline definition model and
// the Loader interface used to produce it.
//
// The `config.Definition` is the single source of truth for the `matrix`,
// `graph` and `scheduler` packages. Every configurable value that may depend
// on parameters, variables or matrix bindings is kept as a raw
// hcl.Expression so evaluation can be deferred to expansion time (or, for
// runtime predicates, to the moment right before a step runs). Concrete
// loaders live in separate packages (hcl_adapter, yaml_adapter).
package config
