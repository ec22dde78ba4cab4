// Package cmd implements the command-line interface for statekit. It
// provides a hierarchical command structure for inspecting and mutating
// persisted values through any of the storage engines.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, set, del, has, raw,
//     watch, bench)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See statekit -help for a list of all commands.
package cmd
