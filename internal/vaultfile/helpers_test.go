package vaultfile

import (
	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

// vindexEntry builds a minimal vindex.Entry suitable for staging in tests,
// where only the credential id and blob pointer matter.
func vindexEntry(credID vformat.CredentialID, ptr vformat.BlobPointer) vindex.Entry {
	return vindex.Entry{
		CredentialID:    credID,
		Blob:            ptr,
		IssuerSchemaID:  "test-schema",
		Status:          vformat.StatusActive,
		GenesisIssuedAt: 1000,
		CreatedAt:       1000,
		UpdatedAt:       1000,
	}
}
