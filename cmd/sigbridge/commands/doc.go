// Package commands defines the sigbridge CLI.
//
// Commands
//
//   - init          Provision the identity, signed prekey and prekey pool
//   - fingerprint   Print the identity fingerprint
//   - bundle        Print the current prekey bundle as JSON
//   - publish       Rotate keys when due and upload the bundle to the directory
//   - session       Establish a session from a bundle file or the directory
//   - encrypt       Encrypt a message for a peer, printing the ciphertext JSON
//   - decrypt       Decrypt a ciphertext JSON file (or stdin) from a peer
//   - reset         Forget the session with a peer
//   - sessions      List stored sessions
//
// # Implementation
//
// The root command loads the config file, applies flag and environment
// overrides and builds an app.App before any subcommand runs. The app is
// closed after the subcommand returns.
package commands
