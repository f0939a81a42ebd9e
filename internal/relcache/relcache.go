// Package relcache is a disposable, derived read cache for credential
// listing. It is rebuilt entirely from a committed VaultIndex snapshot and
// is never consulted for anything but filtering list_credentials — the
// in-memory VaultIndex stays authoritative for every correctness-sensitive
// path. Deleting the cache file loses nothing; the next open just rebuilds
// it.
package relcache

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"worldid.dev/vault/internal/vformat"
	"worldid.dev/vault/internal/vindex"
)

var bucketByStatus = []byte("by_status")
var bucketBySchema = []byte("by_schema")
var bucketByExpiry = []byte("by_expiry")

// Cache wraps a bbolt database holding secondary indexes over one
// account's VaultIndex.
type Cache struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the cache file at path.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, vformat.NewError(vformat.KindStorageIO, "relcache.Open", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketByStatus, bucketBySchema, bucketByExpiry} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, vformat.NewError(vformat.KindStorageIO, "relcache.Open", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Rebuild drops and repopulates every bucket from idx. Called after every
// commit; cheap relative to the AEAD reseal that dominates a commit's cost.
func (c *Cache) Rebuild(idx *vindex.Index) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketByStatus, bucketBySchema, bucketByExpiry} {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		statusBucket := tx.Bucket(bucketByStatus)
		schemaBucket := tx.Bucket(bucketBySchema)
		expiryBucket := tx.Bucket(bucketByExpiry)

		for _, id := range idx.SortedIDs() {
			entry, _ := idx.Get(id)
			if err := appendToBucket(statusBucket, []byte{byte(entry.Status)}, id); err != nil {
				return err
			}
			if err := appendToBucket(schemaBucket, schemaKey(entry.IssuerSchemaID), id); err != nil {
				return err
			}
			var expiryKey [8]byte
			binary.BigEndian.PutUint64(expiryKey[:], uint64(entry.ExpiresAt))
			if err := appendToBucket(expiryBucket, expiryKey[:], id); err != nil {
				return err
			}
		}
		return nil
	})
}

// appendToBucket appends credentialID to the list stored under key,
// growing it in place. Entry counts per account are small (credentials,
// not transactions), so a flat growing value is simpler than a nested
// bucket per key.
func appendToBucket(bucket *bbolt.Bucket, key []byte, credentialID vformat.CredentialID) error {
	existing := bucket.Get(key)
	next := make([]byte, len(existing)+vformat.CredentialIDSize)
	copy(next, existing)
	copy(next[len(existing):], credentialID[:])
	return bucket.Put(append([]byte(nil), key...), next)
}

// ListByStatus returns the credential ids cached under status.
func (c *Cache) ListByStatus(status vformat.CredentialStatus) ([]vformat.CredentialID, error) {
	return c.listByKey(bucketByStatus, []byte{byte(status)})
}

// ListBySchema returns the credential ids cached under an issuer schema id.
func (c *Cache) ListBySchema(issuerSchemaID string) ([]vformat.CredentialID, error) {
	return c.listByKey(bucketBySchema, schemaKey(issuerSchemaID))
}

// schemaKey prefixes an issuer schema id with one fixed byte, so that the
// empty schema id still maps to a non-empty bbolt key.
func schemaKey(issuerSchemaID string) []byte {
	return append([]byte{'s'}, issuerSchemaID...)
}

func (c *Cache) listByKey(bucketName, key []byte) ([]vformat.CredentialID, error) {
	var out []vformat.CredentialID
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return fmt.Errorf("relcache: bucket %s missing", bucketName)
		}
		raw := bucket.Get(key)
		if len(raw)%vformat.CredentialIDSize != 0 {
			return fmt.Errorf("relcache: malformed entry for key %x", key)
		}
		for i := 0; i < len(raw); i += vformat.CredentialIDSize {
			var id vformat.CredentialID
			copy(id[:], raw[i:i+vformat.CredentialIDSize])
			out = append(out, id)
		}
		return nil
	})
	if err != nil {
		return nil, vformat.NewError(vformat.KindStorageIO, "relcache.listByKey", err)
	}
	return out, nil
}
