package binary

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// ErrIntegrity marks archives that failed a checksum or signature check.
var ErrIntegrity = errors.New("archive integrity check failed")

// VerificationMethod names how an archive was verified.
type VerificationMethod string

const (
	VerificationNone   VerificationMethod = "none"
	VerificationSHA256 VerificationMethod = "sha256"
	VerificationGPG    VerificationMethod = "gpg"
)

// Verifier checks downloaded archives against a pinned SHA-256 digest and,
// when a keyring is configured, a detached OpenPGP signature. Both checks
// are optional; with neither configured every archive passes.
type Verifier struct {
	expectedSHA256 string
	keyringPath    string
}

// NewVerifier creates a verifier. Empty arguments disable the
// corresponding check.
func NewVerifier(expectedSHA256, keyringPath string) *Verifier {
	return &Verifier{
		expectedSHA256: strings.ToLower(expectedSHA256),
		keyringPath:    keyringPath,
	}
}

// NeedsSignature reports whether a signature file must be downloaded.
func (v *Verifier) NeedsSignature() bool {
	return v.keyringPath != ""
}

// VerifyFile runs the configured checks against archivePath. signaturePath
// is required only when a keyring is configured. It returns the methods
// that passed.
func (v *Verifier) VerifyFile(archivePath, signaturePath string) ([]VerificationMethod, error) {
	var passed []VerificationMethod

	if v.expectedSHA256 != "" {
		actual, err := calculateSHA256(archivePath)
		if err != nil {
			return nil, fmt.Errorf("calculate checksum: %w", err)
		}
		if !strings.EqualFold(actual, v.expectedSHA256) {
			return nil, fmt.Errorf("%w: checksum mismatch:\nactual:   %s\nexpected: %s",
				ErrIntegrity, actual, v.expectedSHA256)
		}
		passed = append(passed, VerificationSHA256)
	}

	if v.keyringPath != "" {
		if signaturePath == "" {
			return nil, fmt.Errorf("%w: signature required by keyring %s but not available", ErrIntegrity, v.keyringPath)
		}
		if err := v.verifyGPG(archivePath, signaturePath); err != nil {
			return nil, err
		}
		passed = append(passed, VerificationGPG)
	}

	if len(passed) == 0 {
		passed = append(passed, VerificationNone)
	}
	return passed, nil
}

// verifyGPG verifies a file using a detached GPG signature
func (v *Verifier) verifyGPG(archivePath, signaturePath string) error {
	keyring, err := loadKeyring(v.keyringPath)
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sigFile.Close()

	// Try armored first
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, archiveFile, sigFile, nil)
	if err != nil {
		if _, serr := archiveFile.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind archive: %w", serr)
		}
		if _, serr := sigFile.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind signature: %w", serr)
		}
		_, err = openpgp.CheckDetachedSignature(keyring, archiveFile, sigFile, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: verify signature: %v", ErrIntegrity, err)
	}
	return nil
}

// loadKeyring reads an armored or binary OpenPGP keyring.
func loadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		// Try reading as non-armored keyring
		if _, serr := keyringFile.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}

// calculateSHA256 calculates the SHA256 checksum of a file
func calculateSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
