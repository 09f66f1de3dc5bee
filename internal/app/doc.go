// Package app wires sigbridge's dependencies for the CLI.
//
// It builds the record store, vault, key manager, session manager, directory
// client and protocol service from a config.Config and exposes them on App.
package app
