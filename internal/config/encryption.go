package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedPrefix 标记已加密的配置值
const EncryptedPrefix = "encrypted:"

// 密钥派生要求确定性，两端必须用相同的盐
var keySalt = []byte("docpipe-rag-config")

// EncryptionService 配置加密服务
type EncryptionService struct {
	key []byte
}

// NewEncryptionService 创建加密服务。masterKey为空时服务可用，
// 但遇到加密值会报错，提示设置 CONFIG_ENCRYPTION_KEY。
func NewEncryptionService(masterKey string) (*EncryptionService, error) {
	if masterKey == "" {
		return &EncryptionService{}, nil
	}
	key := pbkdf2.Key([]byte(masterKey), keySalt, 10000, 32, sha256.New)
	return &EncryptionService{key: key}, nil
}

// Encrypt 加密数据
func (es *EncryptionService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if es.key == nil {
		return "", fmt.Errorf("encryption key not configured, set CONFIG_ENCRYPTION_KEY")
	}

	block, err := aes.NewCipher(es.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密数据
func (es *EncryptionService) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}
	if es.key == nil {
		return "", fmt.Errorf("encryption key not configured, set CONFIG_ENCRYPTION_KEY")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(es.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// EncryptValue 加密并加上前缀，供生成配置文件的工具使用
func (es *EncryptionService) EncryptValue(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	encrypted, err := es.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	return EncryptedPrefix + encrypted, nil
}

// DecryptValue 解密带前缀的值，无前缀的原样返回
func (es *EncryptionService) DecryptValue(value string) (string, error) {
	if !strings.HasPrefix(value, EncryptedPrefix) {
		return value, nil
	}
	plain, err := es.Decrypt(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt config value: %w", err)
	}
	return plain, nil
}
