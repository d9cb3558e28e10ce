package ports

import "context"

// KeyValueStore is durable client storage (cookies, local storage, redis)
type KeyValueStore interface {
	// GetItem returns the value at key; ok is false when nothing is stored
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// MetadataStorage uploads metadata documents and returns their URI
type MetadataStorage interface {
	UploadAsJSON(ctx context.Context, document any) (string, error)
}
