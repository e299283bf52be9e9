package crypto

import (
	"encoding/json"
	"fmt"
)

// CameraCredentialAAD is the additional authenticated data binding a
// camera's encrypted credential blob to its organization and camera id,
// mirroring the "{tenant}:{nvr}:nvr_credential_v1" binding the teacher
// uses for NVR credentials (internal/nvr/service.go SetCredentials).
func CameraCredentialAAD(organizationID, cameraID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:camera_credential_v1", organizationID, cameraID))
}

// CredentialCodec envelope-encrypts and decrypts a camera's plaintext
// "username:password" credential using a Keyring-held master key, the
// same DEK-per-secret envelope scheme as internal/nvr/service.go.
type CredentialCodec struct {
	Keyring *Keyring
}

// Blob is the wire/storage shape of an envelope-encrypted credential: the
// wrapped DEK plus the DEK-encrypted payload, JSON-encoded (see
// EncryptedCreds) into the single column the cameras table stores (§6.2).
type Blob struct {
	MasterKID    string
	DEKNonce     []byte
	DEKCiphertext []byte
	DEKTag       []byte
	PayloadNonce []byte
	Payload      []byte
	PayloadTag   []byte
}

// Encrypt wraps a fresh DEK with the active master key and uses it to
// encrypt plaintext, returning the envelope to be persisted.
func (c *CredentialCodec) Encrypt(organizationID, cameraID, plaintext string) (Blob, error) {
	aad := CameraCredentialAAD(organizationID, cameraID)

	dek, err := GenerateDEK()
	if err != nil {
		return Blob{}, err
	}

	kid, dekNonce, dekCT, dekTag, err := c.Keyring.WrapDEK(dek, aad)
	if err != nil {
		return Blob{}, err
	}

	payloadNonce, payload, payloadTag, err := EncryptGCM(dek, []byte(plaintext), aad)
	if err != nil {
		return Blob{}, err
	}

	return Blob{
		MasterKID:     kid,
		DEKNonce:      dekNonce,
		DEKCiphertext: dekCT,
		DEKTag:        dekTag,
		PayloadNonce:  payloadNonce,
		Payload:       payload,
		PayloadTag:    payloadTag,
	}, nil
}

// Decrypt reverses Encrypt, yielding the "username:password" plaintext. A
// failure here is surfaced to the caller as a connect error, never a
// silent empty credential (§6.1).
func (c *CredentialCodec) Decrypt(organizationID, cameraID string, b Blob) (string, error) {
	aad := CameraCredentialAAD(organizationID, cameraID)

	dek, err := c.Keyring.UnwrapDEK(b.MasterKID, b.DEKNonce, b.DEKCiphertext, b.DEKTag, aad)
	if err != nil {
		return "", fmt.Errorf("crypto: unwrap camera credential dek: %w", err)
	}

	plain, err := DecryptGCM(dek, b.PayloadNonce, b.Payload, b.PayloadTag, aad)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt camera credential: %w", err)
	}
	return string(plain), nil
}

// EncryptedCreds marshals a Blob to the flat byte form stored in the
// cameras.encrypted_credentials column.
func (c *CredentialCodec) EncryptedCreds(organizationID, cameraID, plaintext string) ([]byte, error) {
	b, err := c.Encrypt(organizationID, cameraID, plaintext)
	if err != nil {
		return nil, err
	}
	return json.Marshal(b)
}

// DecryptCredentials implements ingest.CredentialDecryptor over the flat
// byte form of a Blob.
func (c *CredentialCodec) DecryptCredentials(organizationID, cameraID string, blob []byte) (string, error) {
	var b Blob
	if err := json.Unmarshal(blob, &b); err != nil {
		return "", fmt.Errorf("crypto: malformed camera credential blob: %w", err)
	}
	return c.Decrypt(organizationID, cameraID, b)
}
