// Package keys derives the account key hierarchy from the account root
// secret: account id, vault key, and the blinding and session-randomness
// seeds used by the disclosure/proof layer above this core. The device id
// is derived separately, from device entropy.
package keys

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"worldid.dev/vault/internal/vcrypto"
	"worldid.dev/vault/internal/vformat"
)

// RootSize is the width of the account root secret.
const RootSize = 32

// SeedSize is the width of every derived seed (vault key excepted, which is
// sized by vcrypto.VaultKey but happens to share the same width).
const SeedSize = 32

// HKDF info strings, each producing an independent subkey.
const (
	infoAccountID   = "worldid/account-id"
	infoDeviceID    = "worldid/device-id"
	infoVaultKey    = "worldid/vault-key"
	infoIssuerBlind = "worldid/issuer-blind"
	infoSessionR    = "worldid/session-r"

	infoCredentialBlind = "worldid/credential-blind"
)

// Root is 32 bytes of high-entropy material, stored only inside
// AccountState. It must never be written to disk anywhere else.
type Root [RootSize]byte

func derive(root []byte, info string, out []byte) error {
	r := hkdf.New(sha256.New, root, nil, []byte(info))
	_, err := io.ReadFull(r, out)
	if err != nil {
		return vformat.NewError(vformat.KindCryptoFailure, "keys.derive", err)
	}
	return nil
}

// DeriveAccountID computes the deterministic, device-local AccountId from
// the root: truncate_16(HKDF(root, "worldid/account-id")).
func DeriveAccountID(root []byte) (vformat.AccountID, error) {
	var buf [SeedSize]byte
	if err := derive(root, infoAccountID, buf[:]); err != nil {
		return vformat.AccountID{}, err
	}
	var id vformat.AccountID
	copy(id[:], buf[:vformat.AccountIDSize])
	return id, nil
}

// DeriveDeviceID derives a device id from caller-supplied device entropy.
// vault.WorldIdStore.CreateAccount draws that entropy from crypto/rand.
func DeriveDeviceID(deviceEntropy []byte) ([SeedSize]byte, error) {
	var out [SeedSize]byte
	if err := derive(deviceEntropy, infoDeviceID, out[:]); err != nil {
		return out, err
	}
	return out, nil
}

// DeriveVaultKey derives the symmetric AEAD key used to seal the index and
// blobs. It is held only in volatile memory.
func DeriveVaultKey(root []byte) (vcrypto.VaultKey, error) {
	var key vcrypto.VaultKey
	if err := derive(root, infoVaultKey, key[:]); err != nil {
		return vcrypto.VaultKey{}, err
	}
	return key, nil
}

// DeriveIssuerBlindSeed derives the seed used to blind issuer-side
// interactions.
func DeriveIssuerBlindSeed(root []byte) ([SeedSize]byte, error) {
	var out [SeedSize]byte
	if err := derive(root, infoIssuerBlind, out[:]); err != nil {
		return out, err
	}
	return out, nil
}

// DeriveSessionRSeed derives the seed used for session randomness in proof
// generation.
func DeriveSessionRSeed(root []byte) ([SeedSize]byte, error) {
	var out [SeedSize]byte
	if err := derive(root, infoSessionR, out[:]); err != nil {
		return out, err
	}
	return out, nil
}

// DeriveCredentialBlind derives a per-credential subkey from a seed (either
// the issuer blind seed or the session-r seed) and a stable input — here,
// the credential id — so the same (seed, credential id) pair always
// reproduces the same blind.
func DeriveCredentialBlind(seed [SeedSize]byte, credentialID vformat.CredentialID) ([SeedSize]byte, error) {
	r := hkdf.New(sha256.New, seed[:], credentialID[:], []byte(infoCredentialBlind))
	var out [SeedSize]byte
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, vformat.NewError(vformat.KindCryptoFailure, "keys.DeriveCredentialBlind", err)
	}
	return out, nil
}

// Bundle holds every key derived from a single account root, computed once
// at account-state load time and held only in memory.
type Bundle struct {
	AccountID       vformat.AccountID
	VaultKey        vcrypto.VaultKey
	IssuerBlindSeed [SeedSize]byte
	SessionRSeed    [SeedSize]byte
}

// DeriveBundle computes every derived key from root in one pass.
func DeriveBundle(root []byte) (Bundle, error) {
	accountID, err := DeriveAccountID(root)
	if err != nil {
		return Bundle{}, err
	}
	vaultKey, err := DeriveVaultKey(root)
	if err != nil {
		return Bundle{}, err
	}
	issuerBlind, err := DeriveIssuerBlindSeed(root)
	if err != nil {
		return Bundle{}, err
	}
	sessionR, err := DeriveSessionRSeed(root)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		AccountID:       accountID,
		VaultKey:        vaultKey,
		IssuerBlindSeed: issuerBlind,
		SessionRSeed:    sessionR,
	}, nil
}
