//go:build !unix

package utils

// Detach is a no-op where process groups are unavailable.
func (s *SafeCommand) Detach() {}
