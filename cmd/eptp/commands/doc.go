// Package commands defines the eptp CLI and wires dependencies for subcommands.
//
// Commands
//
//   - login     Derive the identity key from a user ID and secret phrase
//   - chat      Open an encrypted peer-to-peer conversation
//   - contacts  List known conversations with their latest message
//   - history   Print the stored history of one conversation
//
// # Implementation
//
// The root command builds the dependency graph (file stores, relay endpoint)
// before any subcommand runs, so handlers share one app wire.
package commands
