package compose

import "fmt"

// BindingMismatchError reports a supplied binding whose implementation does
// not satisfy the bound requirement's contract, or a requirement with no
// binding at all. Bindings arrive independently of resolution (e.g. loaded
// from a saved project file), so the composer re-validates them even though
// the resolver already filtered candidates. Fatal to the composition
// attempt.
type BindingMismatchError struct {
	Attribute string
	Reason    string
}

// Error implements the error interface.
func (e *BindingMismatchError) Error() string {
	return fmt.Sprintf("binding mismatch for %q: %s", e.Attribute, e.Reason)
}

// InstantiationError reports a driver construction failure. By the time it
// propagates, every driver already instantiated in the pass has been torn
// down in reverse order; no partially usable bundle survives.
type InstantiationError struct {
	Attribute string
	Path      string
	Err       error
}

// Error implements the error interface.
func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiation failed for %q (%s): %v", e.Attribute, e.Path, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *InstantiationError) Unwrap() error {
	return e.Err
}
