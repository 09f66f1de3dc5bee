// Package keys owns the local key material: the identity key pair and
// registration id, the one-time prekey pool and the signed prekey rotation.
//
// One-time prekeys move through three states. Available keys can be handed
// out in bundles. A handshake in progress reserves the key it loads under its
// call id, so no concurrent handshake can load it too. CommitPreKeys then
// tombstones and deletes it for good, while ReleasePreKeys returns it to the
// pool after a failed handshake. A committed id is never issued again.
package keys
