// Package transform holds the at-rest content transform applied to managed
// files before they are hashed.
package transform

// Transform brings a file into its at-rest form. EnsureAtRest must be
// idempotent: calling it on a file that is already in at-rest form is a no-op.
type Transform interface {
	EnsureAtRest(path string) error
}

// Nop leaves files untouched.
type Nop struct{}

func (Nop) EnsureAtRest(string) error { return nil }

// Func adapts a plain function to a Transform.
type Func func(path string) error

func (f Func) EnsureAtRest(path string) error { return f(path) }

// Select returns the transform the scanner should apply for a remote tree.
// Unencrypted trees and a missing protector both yield Nop.
func Select(encrypt bool, protect Transform) Transform {
	if !encrypt || protect == nil {
		return Nop{}
	}
	return protect
}

var (
	_ Transform = Nop{}
	_ Transform = Func(nil)
)
