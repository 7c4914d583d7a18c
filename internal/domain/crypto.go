package domain

import "context"

// Cipher is the encryption subsystem consumed by the field layer.
type Cipher interface {
	EncryptText(ctx context.Context, plaintext string) (string, error)
	DecryptText(ctx context.Context, ciphertext string) (string, error)
	EncryptObject(ctx context.Context, value map[string]any) (string, error)
	DecryptObject(ctx context.Context, ciphertext string) (map[string]any, error)
}

// EncryptionState is the readiness/unlock state of the encryption subsystem.
type EncryptionState struct {
	HasEncryption bool
	IsUnlocked    bool
	IsLoading     bool
}

// CipherStateProvider exposes the current encryption readiness.
type CipherStateProvider interface {
	State() EncryptionState
}
