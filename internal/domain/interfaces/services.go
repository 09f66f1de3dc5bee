package interfaces

import (
	"context"

	domaintypes "sigbridge/internal/domain/types"
)

// ProtocolService is the application-facing façade.
type ProtocolService interface {
	EstablishSession(peer domaintypes.Address, bundle domaintypes.PreKeyBundle) error
	InitiateSession(ctx context.Context, peer domaintypes.Address) error
	Encrypt(ctx context.Context, peer domaintypes.Address, plaintext []byte) (domaintypes.CipherMessage, error)
	Decrypt(peer domaintypes.Address, msg domaintypes.CipherMessage) ([]byte, error)
	CurrentPreKeyBundle() (domaintypes.PreKeyBundle, error)
	ResetSession(peer domaintypes.Address) error
	Close() error
}
