//go:build unix

package utils

import "syscall"

// Detach moves the child into its own process group so a terminal Ctrl+C reaches only this
// process, which then shuts the child down in order.
func (s *SafeCommand) Detach() {
	if s.SysProcAttr == nil {
		s.SysProcAttr = &syscall.SysProcAttr{}
	}
	s.SysProcAttr.Setpgid = true
}
