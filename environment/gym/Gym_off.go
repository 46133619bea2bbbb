//go:build !gogym

package gym

// Enabled reports whether Gym environments are available
const Enabled = false

// Shutdown releases the Python interpreter. It is a no-op without the
// gogym build tag.
func Shutdown() {}
