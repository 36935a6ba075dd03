// Package hcl_adapter loads pipeline definitions written in HCL, the native
// syntax of the expression language. Attribute expressions are kept as they
// were parsed and evaluated later, once parameters and matrix values are
// known.
//
// A path may name a single .hcl file or a directory, in which case every
// .hcl file below it contributes blocks in lexical order.
package hcl_adapter
