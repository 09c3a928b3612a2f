package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for sealing seed files.
const (
	argon2Time        = 3         // Number of iterations
	argon2Memory      = 64 * 1024 // 64 MB memory
	argon2Parallelism = 4         // Parallel threads
	argon2KeyLen      = 32        // AES-256
	argon2SaltLen     = 32
)

// sealedSeedVersion is the only file format understood.
const sealedSeedVersion = 1

// ErrWrongPassword is returned when a sealed seed cannot be opened.
var ErrWrongPassword = errors.New("wrong password or corrupted seed file")

// SealedSeed is a mnemonic encrypted with Argon2id + AES-256-GCM, as stored
// on disk.
type SealedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// SealMnemonic encrypts a mnemonic under password.
func SealMnemonic(mnemonic, password string) (*SealedSeed, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if !ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	sealed := &SealedSeed{
		Version:     sealedSeedVersion,
		Salt:        make([]byte, argon2SaltLen),
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}
	if _, err := rand.Read(sealed.Salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := sealed.cipher(password)
	if err != nil {
		return nil, err
	}

	sealed.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(sealed.Nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed.Ciphertext = gcm.Seal(nil, sealed.Nonce, []byte(mnemonic), nil)

	return sealed, nil
}

// Open decrypts the mnemonic.
func (s *SealedSeed) Open(password string) (string, error) {
	if s.Version != sealedSeedVersion {
		return "", fmt.Errorf("unsupported seed file version %d", s.Version)
	}

	gcm, err := s.cipher(password)
	if err != nil {
		return "", err
	}
	if len(s.Nonce) != gcm.NonceSize() {
		return "", ErrWrongPassword
	}

	plaintext, err := gcm.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	defer SecureClear(plaintext)

	return string(plaintext), nil
}

// cipher stretches password with the seed's own Argon2id parameters.
func (s *SealedSeed) cipher(password string) (cipher.AEAD, error) {
	if s.Time == 0 || s.Memory == 0 || s.Parallelism == 0 || len(s.Salt) == 0 {
		return nil, fmt.Errorf("seed file is missing key derivation parameters")
	}

	key := argon2.IDKey([]byte(password), s.Salt, s.Time, s.Memory, s.Parallelism, argon2KeyLen)
	defer SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// WriteSealedSeed saves a sealed seed with owner-only permissions.
func WriteSealedSeed(sealed *SealedSeed, path string) error {
	if err := ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ReadSealedSeed loads a sealed seed from a file.
func ReadSealedSeed(path string) (*SealedSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var sealed SealedSeed
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	return &sealed, nil
}

// SecureClear overwrites a byte slice with zeros.
func SecureClear(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// Password limits
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ValidatePassword requires 8-256 characters drawn from at least three of
// uppercase, lowercase, digits and symbols.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	classes := map[string]bool{}
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			classes["upper"] = true
		case unicode.IsLower(char):
			classes["lower"] = true
		case unicode.IsNumber(char):
			classes["digit"] = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			classes["symbol"] = true
		}
	}

	if len(classes) < 3 {
		return fmt.Errorf("password must contain at least 3 of: uppercase, lowercase, number, special character")
	}

	return nil
}

// ValidateFilePath rejects empty and relative traversal paths.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) && strings.HasPrefix(filepath.Clean(path), "..") {
		return fmt.Errorf("suspicious path (potential traversal): %s", path)
	}
	return nil
}
