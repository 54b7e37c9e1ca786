package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
)

// secretBox decrypts config files with either an AWS KMS key (key is a KMS ARN)
// or a local AES-GCM key derived from the passphrase with SHA-256.
type secretBox struct {
	kmsClient *kms.Client
	keyID     string
	localKey  []byte
}

func newSecretBox(ctx context.Context) (*secretBox, error) {
	key := strings.TrimSpace(viper.GetString(constants.EncryptionKey))
	if key == "" {
		return nil, nil
	}

	if strings.HasPrefix(key, "arn:aws:kms:") {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return &secretBox{kmsClient: kms.NewFromConfig(cfg), keyID: key}, nil
	}

	hash := sha256.Sum256([]byte(key))
	return &secretBox{localKey: hash[:]}, nil
}

func (s *secretBox) open(ctx context.Context, data []byte) ([]byte, error) {
	if s.kmsClient != nil {
		out, err := s.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: data, KeyId: &s.keyID})
		if err != nil {
			return nil, err
		}
		return out.Plaintext, nil
	}

	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

func (s *secretBox) seal(ctx context.Context, plain []byte) ([]byte, error) {
	if s.kmsClient != nil {
		out, err := s.kmsClient.Encrypt(ctx, &kms.EncryptInput{KeyId: &s.keyID, Plaintext: plain})
		if err != nil {
			return nil, err
		}
		return out.CiphertextBlob, nil
	}

	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *secretBox) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.localKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DecryptConfig decrypts a base64 (URL alphabet) encoded payload, optionally wrapped
// in a JSON string. Without a configured encryption key the input is returned as is.
func DecryptConfig(encryptedConfig string) (string, error) {
	ctx := context.Background()
	box, err := newSecretBox(ctx)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %s", err)
	}
	if box == nil {
		return encryptedConfig, nil
	}

	var unquoted string
	if err := json.Unmarshal([]byte(strings.TrimSpace(encryptedConfig)), &unquoted); err != nil {
		unquoted = strings.TrimSpace(encryptedConfig)
	}

	encrypted, err := base64.URLEncoding.DecodeString(unquoted)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 data: %s", err)
	}

	plain, err := box.open(ctx, encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt data: %s", err)
	}
	return string(plain), nil
}

// EncryptConfig is the inverse of DecryptConfig.
func EncryptConfig(plain string) (string, error) {
	ctx := context.Background()
	box, err := newSecretBox(ctx)
	if err != nil {
		return "", fmt.Errorf("encryption failed: %s", err)
	}
	if box == nil {
		return plain, nil
	}

	sealed, err := box.seal(ctx, []byte(plain))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt data: %s", err)
	}
	return base64.URLEncoding.EncodeToString(sealed), nil
}
