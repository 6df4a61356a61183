// Package version pins the released module version.
package version

// Current is the semantic version without a "v" prefix.
const Current = "0.1.0"
