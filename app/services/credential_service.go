package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/telepost/telepost/models"
)

// Credential service error constants
var (
	ErrBotInactive   = errors.New("bot is not active")
	ErrBadCiphertext = errors.New("stored bot token is not decryptable")
)

// CredentialService seals and unseals Telegram bot tokens at rest.
// Tokens are stored as base64(nonce || XChaCha20-Poly1305 ciphertext).
type CredentialService interface {
	BotToken(bot *models.UserBot) (string, error)
	EncryptToken(plain string) (string, error)
}

// CredentialServiceImpl implements CredentialService
type CredentialServiceImpl struct {
	key []byte
}

// NewCredentialService creates a credential service from a 32-byte hex or raw key
func NewCredentialService(key string) (CredentialService, error) {
	raw := []byte(key)
	if len(raw) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("bot token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(raw))
	}
	return &CredentialServiceImpl{key: raw}, nil
}

// BotToken decrypts the stored token of an active bot. Revoked or
// flood-restricted bots are refused so dispatch fails before touching
// the Telegram API.
func (s *CredentialServiceImpl) BotToken(bot *models.UserBot) (string, error) {
	if bot == nil {
		return "", fmt.Errorf("bot is nil")
	}
	if bot.Status != models.BotStatusActive {
		return "", fmt.Errorf("bot %s: %w", bot.ID, ErrBotInactive)
	}

	sealed, err := base64.StdEncoding.DecodeString(bot.TokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("bot %s: %w", bot.ID, ErrBadCiphertext)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("bot %s: %w", bot.ID, ErrBadCiphertext)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("bot %s: %w", bot.ID, ErrBadCiphertext)
	}
	return string(plain), nil
}

// EncryptToken seals a plaintext bot token for storage
func (s *CredentialServiceImpl) EncryptToken(plain string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
