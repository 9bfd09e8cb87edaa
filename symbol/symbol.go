// Package symbol provides marker functions for analysed code. Calls to them
// have no effect at run time; the lifter reads them to classify inputs and to
// place speculation barriers and cache flushes.
package symbol

// Secret marks the parameter v of the enclosing function as a secret input.
func Secret(v interface{}) {}

// Public marks the parameter v of the enclosing function as a public input.
// When a function declares public inputs only, the others are secret.
func Public(v interface{}) {}

// Barrier stops speculative execution.
func Barrier() {}

// Flush evicts every cache line.
func Flush() {}
