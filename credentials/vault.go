package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/repotorpedo/torpedo/encryption"
	"github.com/repotorpedo/torpedo/repository"
	"github.com/zalando/go-keyring"
)

// ErrTokenNotFound is returned by vaults for unknown references.
var ErrTokenNotFound = errors.New("token not found")

// KeyringService is the OS keyring service name tokens are stored under.
const KeyringService = "torpedo"

// Token is the secret material obtained from a provider.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// Vault stores provider tokens outside of connection state.
type Vault interface {
	Put(ctx context.Context, ref string, tok Token) error
	Get(ctx context.Context, ref string) (Token, error)
	Delete(ctx context.Context, ref string) error
}

// TokenRef names the vault entry of a provider's token.
func TokenRef(providerID string) string {
	return "provider/" + providerID
}

// DatabaseVault seals tokens with fernet and stores them in the database.
type DatabaseVault struct {
	repo repository.TokenRepository
	enc  *encryption.EncryptionService
}

func NewDatabaseVault(repo repository.TokenRepository, enc *encryption.EncryptionService) *DatabaseVault {
	return &DatabaseVault{repo: repo, enc: enc}
}

func (v *DatabaseVault) Put(ctx context.Context, ref string, tok Token) error {
	sealed, err := v.enc.EncryptJSON(tok)
	if err != nil {
		return err
	}
	return v.repo.Put(ctx, ref, sealed)
}

func (v *DatabaseVault) Get(ctx context.Context, ref string) (Token, error) {
	sealed, err := v.repo.Get(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, err
	}
	var tok Token
	if err := v.enc.DecryptJSON(sealed, &tok); err != nil {
		return Token{}, fmt.Errorf("failed to open token %s: %w", ref, err)
	}
	return tok, nil
}

func (v *DatabaseVault) Delete(ctx context.Context, ref string) error {
	return v.repo.Delete(ctx, ref)
}

// KeyringVault keeps tokens in the operating system keyring.
type KeyringVault struct {
	service string
}

func NewKeyringVault(service string) *KeyringVault {
	if service == "" {
		service = KeyringService
	}
	return &KeyringVault{service: service}
}

func (v *KeyringVault) Put(_ context.Context, ref string, tok Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to serialize token: %w", err)
	}
	if err := keyring.Set(v.service, ref, string(data)); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

func (v *KeyringVault) Get(_ context.Context, ref string) (Token, error) {
	data, err := keyring.Get(v.service, ref)
	if errors.Is(err, keyring.ErrNotFound) {
		return Token{}, ErrTokenNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to read token from keyring: %w", err)
	}
	var tok Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return Token{}, fmt.Errorf("failed to parse token %s: %w", ref, err)
	}
	return tok, nil
}

func (v *KeyringVault) Delete(_ context.Context, ref string) error {
	err := keyring.Delete(v.service, ref)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
