// Package yaml_adapter loads pipeline definitions written in YAML.
//
// Documents are decoded through yaml.Node so that mapping order survives:
// matrix axes, variables and template arguments keep the order they were
// written in.
//
// # Values
//
// Every string scalar is a string template, so "cargo +${matrix.channel}"
// interpolates and "${parameters.channels}" yields the raw value. Predicate
// fields (if, and continueOnError when given as a string) are expressions.
// Other scalars are literals.
//
// Inside any mapping value the key "$insert" splices a mapping-valued
// expression into the surrounding mapping. Keys written after it win over
// the inserted ones and the inserted ones win over keys written before it.
package yaml_adapter
