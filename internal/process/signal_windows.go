//go:build windows

package process

// terminate cannot deliver SIGTERM on Windows; tabs are left to the browser.
func terminate(pid int) (Outcome, error) {
	return Unsupported, ErrUnsupported
}
