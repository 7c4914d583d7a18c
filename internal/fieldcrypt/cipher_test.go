package fieldcrypt

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *keyCipher {
	t.Helper()

	masterKey, err := GenerateMasterKey()
	require.NoError(t, err)

	cipher, err := NewKeyCipher(CipherDependencies{MasterKey: masterKey})
	require.NoError(t, err)

	return cipher
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher := newTestCipher(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "ascii", plaintext: "hello world"},
		{name: "unicode", plaintext: "こんにちは 🌍 ñandú"},
		{name: "json-ish", plaintext: `{"model":"x","temperature":0.7}`},
		{name: "long", plaintext: strings.Repeat("a", 2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := cipher.EncryptText(ctx, tt.plaintext)
			require.NoError(t, err)
			assert.True(t, IsEncrypted(ciphertext))

			plaintext, err := cipher.DecryptText(ctx, ciphertext)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncryptDecryptObject(t *testing.T) {
	cipher := newTestCipher(t)
	ctx := context.Background()

	original := map[string]any{"model": "x", "temperature": 0.7, "tools": []any{"search"}}

	ciphertext, err := cipher.EncryptObject(ctx, original)
	require.NoError(t, err)

	decrypted, err := cipher.DecryptObject(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "x", decrypted["model"])
	assert.Equal(t, 0.7, decrypted["temperature"])
}

func TestDecryptWhileLocked(t *testing.T) {
	cipher := newTestCipher(t)
	ctx := context.Background()

	ciphertext, err := cipher.EncryptText(ctx, "secret")
	require.NoError(t, err)

	cipher.Lock()

	_, err = cipher.DecryptText(ctx, ciphertext)
	assert.ErrorIs(t, err, ErrCipherLocked)

	state := cipher.State()
	assert.True(t, state.HasEncryption)
	assert.False(t, state.IsUnlocked)

	cipher.Unlock()

	plaintext, err := cipher.DecryptText(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "secret", plaintext)
}

func TestDecryptWithWrongKeyIsCorrupt(t *testing.T) {
	ctx := context.Background()

	ciphertext, err := newTestCipher(t).EncryptText(ctx, "secret")
	require.NoError(t, err)

	other := newTestCipher(t)

	_, err = other.DecryptText(ctx, ciphertext)
	assert.ErrorIs(t, err, ErrCipherCorrupt)
}

func TestDecryptGarbageIsCorrupt(t *testing.T) {
	cipher := newTestCipher(t)
	ctx := context.Background()

	_, err := cipher.DecryptText(ctx, "enc:v1:not base64!!!")
	assert.ErrorIs(t, err, ErrCipherCorrupt)

	_, err = cipher.DecryptText(ctx, "enc:v1:YWJj")
	assert.ErrorIs(t, err, ErrCipherCorrupt, "payload shorter than nonce")
}

func TestCipherWithoutKey(t *testing.T) {
	cipher, err := NewKeyCipher(CipherDependencies{})
	require.NoError(t, err)

	state := cipher.State()
	assert.False(t, state.HasEncryption)
	assert.False(t, state.IsUnlocked)

	_, err = cipher.EncryptText(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoEncryption)
}
