// Package fmlearn holds build-level constants shared by the fmlearn binaries.
package fmlearn

// Version is the released version of fmlearn.
const Version = "0.3.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/mesh-intelligence/fmlearn"
