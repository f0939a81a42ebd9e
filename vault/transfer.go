package vault

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"worldid.dev/vault/internal/vformat"
)

// ImportOutcomeKind classifies the result of ImportTransfer.
type ImportOutcomeKind int

const (
	ImportOutcomeImported ImportOutcomeKind = iota
	ImportOutcomeAlreadyPresent
	ImportOutcomeRejected
)

// ImportOutcome is the result of ImportTransfer.
type ImportOutcome struct {
	Kind         ImportOutcomeKind
	CredentialID vformat.CredentialID
	Reason       string // set only when Kind == ImportOutcomeRejected
}

const transferFormatVersion = 1

// ExportTransfer serializes a credential into a self-describing envelope
// suitable for handing to another account (possibly on another device).
func (h *AccountHandle) ExportTransfer(id vformat.CredentialID) ([]byte, error) {
	rec, err := h.GetCredential(id)
	if err != nil {
		return nil, err
	}
	env := vformat.TransferEnvelope{
		FormatVersion:   transferFormatVersion,
		OriginAccountID: h.accountID,
		CredentialID:    rec.CredentialID,
		IssuerSchemaID:  rec.IssuerSchemaID,
		GenesisIssuedAt: rec.GenesisIssuedAt,
		ExpiresAt:       rec.ExpiresAt,
		CredentialBlob:  rec.CredentialBlob,
		AssociatedData:  rec.AssociatedData,
		CreatedAt:       rec.CreatedAt,
	}
	return env.Encode(), nil
}

// ImportTransfer decodes and stores a transfer envelope produced by
// ExportTransfer. A credential already present under the same credential
// id with the same issuer schema and associated-data digest is reported
// AlreadyPresent rather than duplicated; the same id with different
// contents, or a malformed or unsupported envelope, is Rejected rather
// than returned as an error, since the caller is expected to surface the
// reason to the user without treating it as an operational failure.
func (h *AccountHandle) ImportTransfer(envelope []byte) (ImportOutcome, error) {
	if err := h.requireWriter("AccountHandle.ImportTransfer"); err != nil {
		return ImportOutcome{}, err
	}

	env, err := vformat.DecodeTransferEnvelope(envelope)
	if err != nil {
		return ImportOutcome{Kind: ImportOutcomeRejected, Reason: err.Error()}, nil
	}
	if env.FormatVersion != transferFormatVersion {
		return ImportOutcome{Kind: ImportOutcomeRejected, Reason: fmt.Sprintf("unsupported transfer format version %d", env.FormatVersion)}, nil
	}

	var digest [32]byte
	if len(env.AssociatedData) > 0 {
		digest = sha256.Sum256(env.AssociatedData)
	}
	if existing, ok := h.vf.Index().Get(env.CredentialID); ok {
		if existing.IssuerSchemaID == env.IssuerSchemaID && bytes.Equal(existing.AssociatedDataDigest[:], digest[:]) {
			return ImportOutcome{Kind: ImportOutcomeAlreadyPresent, CredentialID: env.CredentialID}, nil
		}
		return ImportOutcome{Kind: ImportOutcomeRejected, Reason: "credential id already present with different contents"}, nil
	}

	rec := CredentialRecord{
		CredentialID:    env.CredentialID,
		IssuerSchemaID:  env.IssuerSchemaID,
		GenesisIssuedAt: env.GenesisIssuedAt,
		ExpiresAt:       env.ExpiresAt,
		CredentialBlob:  env.CredentialBlob,
		AssociatedData:  env.AssociatedData,
		Status:          vformat.StatusPendingImport,
	}
	if _, err := h.StoreCredential(rec); err != nil {
		return ImportOutcome{}, err
	}
	return ImportOutcome{Kind: ImportOutcomeImported, CredentialID: env.CredentialID}, nil
}
