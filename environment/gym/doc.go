// Package gym provides access to OpenAI Gym environments through the
// Go bindings of GoGym, found at https://github.com/samuelfneumann/GoGym.
//
// Gym environments are registered under the prefix "gym/", e.g.
// "gym/Acrobot-v1". All environments only work with their default
// tasks and episode cutoffs.
//
// GoGym embeds a Python interpreter, so this package is only compiled
// with the gogym build tag:
//
//	go build -tags gogym
//
// Without the tag, Enabled is false and no Gym environments are
// registered.
package gym

// Prefix is the prefix of environment identifiers forwarded to Gym
const Prefix = "gym/"
