// Package spawn launches external programs and reports their output as
// structured results.
package spawn

// Version is the spawn release version.
const Version = "0.3.0"
