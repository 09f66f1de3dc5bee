package domain

import (
	interfaces "sigbridge/internal/domain/interfaces"
	types "sigbridge/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Address             = types.Address
	Fingerprint         = types.Fingerprint
	Direction           = types.Direction
	IdentityKeyPair     = types.IdentityKeyPair
	LocalIdentity       = types.LocalIdentity
	PreKeyRecord        = types.PreKeyRecord
	SignedPreKeyRecord  = types.SignedPreKeyRecord
	OneTimePreKeyPublic = types.OneTimePreKeyPublic
	PreKeyBundle        = types.PreKeyBundle
	PublishedKeys       = types.PublishedKeys
	MessageType         = types.MessageType
	CipherMessage       = types.CipherMessage
	SessionStatus       = types.SessionStatus
	SessionInfo         = types.SessionInfo
)

const (
	DirectionSending   = types.DirectionSending
	DirectionReceiving = types.DirectionReceiving

	MessageWhisper = types.MessageWhisper
	MessagePreKey  = types.MessagePreKey

	SessionAbsent      = types.SessionAbsent
	SessionPending     = types.SessionPending
	SessionEstablished = types.SessionEstablished
)

// NewAddress and ParseAddress are re-exported for callers that only import domain.
var (
	NewAddress   = types.NewAddress
	ParseAddress = types.ParseAddress
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	RecordStore     = interfaces.RecordStore
	Vault           = interfaces.Vault
	BundleSource    = interfaces.BundleSource
	Directory       = interfaces.Directory
	ProtocolService = interfaces.ProtocolService
)
