package encryption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKey(t *testing.T) string {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	return key
}

func TestNewEncryptionService(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", generateTestKey(t), false},
		{"empty key", "", true},
		{"invalid key", "invalid-key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewEncryptionService(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestEncryptionService_EncryptDecrypt(t *testing.T) {
	service, err := NewEncryptionService(generateTestKey(t))
	require.NoError(t, err)

	for _, plaintext := range []string{"hello world", "", "rnd_" + strings.Repeat("k", 512), "ünïcödé"} {
		encrypted, err := service.Encrypt(plaintext)
		require.NoError(t, err)
		if plaintext != "" {
			assert.NotEqual(t, plaintext, encrypted)
		}

		decrypted, err := service.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptionService_DecryptWithWrongKey(t *testing.T) {
	a, err := NewEncryptionService(generateTestKey(t))
	require.NoError(t, err)
	b, err := NewEncryptionService(generateTestKey(t))
	require.NoError(t, err)

	encrypted, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(encrypted)
	assert.Error(t, err)

	_, err = a.Decrypt("not base64!")
	assert.Error(t, err)
}

func TestEncryptionService_JSON(t *testing.T) {
	service, err := NewEncryptionService(generateTestKey(t))
	require.NoError(t, err)

	type secret struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}

	sealed, err := service.EncryptJSON(secret{AccessToken: "gho_abc", TokenType: "bearer"})
	require.NoError(t, err)
	assert.NotContains(t, sealed, "gho_abc")

	var out secret
	require.NoError(t, service.DecryptJSON(sealed, &out))
	assert.Equal(t, "gho_abc", out.AccessToken)
	assert.Equal(t, "bearer", out.TokenType)
}
