// Package keyring keeps database credentials in the OS keyring, one entry per
// database id.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "pagecodec"

// ErrNotFound is returned when no credential is stored for a database.
var ErrNotFound = keyring.ErrNotFound

// SaveCredential stores a credential in the OS keyring
func SaveCredential(dbID string, credential []byte) error {
	return keyring.Set(serviceName, dbID, string(credential))
}

// GetCredential retrieves a credential from the OS keyring
func GetCredential(dbID string) ([]byte, error) {
	s, err := keyring.Get(serviceName, dbID)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// DeleteCredential removes a credential from the OS keyring. Deleting a
// missing entry is not an error.
func DeleteCredential(dbID string) error {
	err := keyring.Delete(serviceName, dbID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasCredential checks if a credential is stored in the keyring
func HasCredential(dbID string) bool {
	_, err := keyring.Get(serviceName, dbID)
	return err == nil
}
