package interfaces

import (
	"context"

	domaintypes "sigbridge/internal/domain/types"
)

// BundleSource resolves a peer's current prekey bundle.
type BundleSource interface {
	FetchBundle(ctx context.Context, peer domaintypes.Address) (domaintypes.PreKeyBundle, error)
}

// Directory is a remote prekey directory.
type Directory interface {
	BundleSource
	Publish(ctx context.Context, owner domaintypes.Address, keys domaintypes.PublishedKeys) error
	PreKeyCount(ctx context.Context, owner domaintypes.Address) (int, error)
}
