// Package functions registers a library of commonly used functions, and provides constructors
// for references to them. Importing this package (even for side effects) makes them available
// on both the coordinator and workers.
package functions
