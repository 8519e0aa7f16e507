// Package app wires application dependencies for the CLI.
//
// It builds the concrete file stores and peer stack from Config, exposing
// them via the Wire struct for commands to use.
package app
