package tenant

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tenantdb/tenantdb"
	"github.com/tenantdb/tenantdb/kv"
)

var (
	credentialBucket = []byte("credentialsv1")
	// tenant, username -> id
	credentialIndex = []byte("credentialindexv1")
	// token -> tenant, id
	credentialTokenIndex = []byte("credentialtokenindexv1")
)

func unmarshalCredential(v []byte) (*tenantdb.Credential, error) {
	c := &tenantdb.Credential{}
	if err := json.Unmarshal(v, c); err != nil {
		return nil, ErrCorruptCredential(err)
	}
	return c, nil
}

func marshalCredential(c *tenantdb.Credential) ([]byte, error) {
	return json.Marshal(c)
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *Store) uniqueUsername(tx kv.Tx, tenantID, username string) error {
	idx, err := tx.Bucket(credentialIndex)
	if err != nil {
		return err
	}

	_, err = idx.Get(compoundKey(tenantID, usernameKey(username)))
	// if not found then this is  _unique_.
	if kv.IsNotFound(err) {
		return nil
	}
	if err == nil {
		return UsernameAlreadyExistsError(tenantID, username)
	}
	return err
}

// GetCredential returns a credential of a tenant by id.
func (s *Store) GetCredential(ctx context.Context, tx kv.Tx, tenantID, id string) (c *tenantdb.Credential, retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpFindCredentialByID)
	}()

	b, err := tx.Bucket(credentialBucket)
	if err != nil {
		return nil, err
	}

	v, err := b.Get(compoundKey(tenantID, id))
	if kv.IsNotFound(err) {
		return nil, ErrCredentialNotFound(tenantID, id)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalCredential(v)
}

// GetCredentialByUsername returns a credential of a tenant by username.
func (s *Store) GetCredentialByUsername(ctx context.Context, tx kv.Tx, tenantID, username string) (c *tenantdb.Credential, retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpFindCredentialByUsername)
	}()

	idx, err := tx.Bucket(credentialIndex)
	if err != nil {
		return nil, err
	}

	id, err := idx.Get(compoundKey(tenantID, usernameKey(username)))
	if kv.IsNotFound(err) {
		return nil, ErrCredentialNotFound(tenantID, username)
	}
	if err != nil {
		return nil, err
	}
	return s.GetCredential(ctx, tx, tenantID, string(id))
}

// GetCredentialByToken returns the credential holding token, wherever its tenant.
func (s *Store) GetCredentialByToken(ctx context.Context, tx kv.Tx, token string) (c *tenantdb.Credential, retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpFindCredentialByToken)
	}()

	if token == "" {
		return nil, ErrInvalidToken
	}

	idx, err := tx.Bucket(credentialTokenIndex)
	if err != nil {
		return nil, err
	}

	ref, err := idx.Get([]byte(token))
	if kv.IsNotFound(err) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(ref), keySeparator, 2)
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}
	c, err = s.GetCredential(ctx, tx, parts[0], parts[1])
	if err != nil {
		return nil, err
	}
	// the index may lag behind a logout racing a lookup in another transaction
	if c.AccessToken != token {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// ListCredentials returns the credentials of a tenant matching filter and the number of matches.
func (s *Store) ListCredentials(ctx context.Context, tx kv.Tx, filter tenantdb.CredentialFilter, opt ...tenantdb.FindOptions) (cs []*tenantdb.Credential, n int, retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpFindCredentials)
	}()

	if len(opt) == 0 {
		opt = append(opt, tenantdb.FindOptions{})
	}
	o := opt[0]

	b, err := tx.Bucket(credentialBucket)
	if err != nil {
		return nil, 0, err
	}

	cs = []*tenantdb.Credential{}
	err = kv.WalkPrefix(b, tenantPrefix(filter.TenantID), func(k, v []byte) error {
		c, err := unmarshalCredential(v)
		if err != nil {
			return err
		}
		if filter.Username != nil && usernameKey(*filter.Username) != usernameKey(c.Username) {
			return nil
		}
		if filter.Level != nil && *filter.Level != c.Level {
			return nil
		}

		n++
		if n <= o.Offset {
			return nil
		}
		if o.Limit == 0 || len(cs) < o.Limit {
			cs = append(cs, c)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return cs, n, nil
}

// CreateCredential stores a new credential. A missing id is generated.
func (s *Store) CreateCredential(ctx context.Context, tx kv.Tx, c *tenantdb.Credential) (retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpCreateCredential)
	}()

	if strings.TrimSpace(c.Username) == "" {
		return ErrUsernameEmpty
	}
	if tenantdb.ReservedUsername(c.Username) {
		return ErrUsernameReserved(c.Username)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.uniqueUsername(tx, c.TenantID, c.Username); err != nil {
		return err
	}

	b, err := tx.Bucket(credentialBucket)
	if err != nil {
		return err
	}
	if _, err := b.Get(compoundKey(c.TenantID, c.ID)); err == nil {
		return CredentialIDAlreadyExistsError(c.TenantID, c.ID)
	}

	idx, err := tx.Bucket(credentialIndex)
	if err != nil {
		return err
	}
	if err := idx.Put(compoundKey(c.TenantID, usernameKey(c.Username)), []byte(c.ID)); err != nil {
		return err
	}
	if err := s.putToken(tx, c, ""); err != nil {
		return err
	}
	return s.putCredential(b, c)
}

// UpdateCredential overwrites a stored credential and keeps its indexes current.
func (s *Store) UpdateCredential(ctx context.Context, tx kv.Tx, c *tenantdb.Credential) (retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpUpdateCredential)
	}()

	old, err := s.GetCredential(ctx, tx, c.TenantID, c.ID)
	if err != nil {
		return err
	}

	if usernameKey(old.Username) != usernameKey(c.Username) {
		if err := s.uniqueUsername(tx, c.TenantID, c.Username); err != nil {
			return err
		}
		idx, err := tx.Bucket(credentialIndex)
		if err != nil {
			return err
		}
		if err := idx.Delete(compoundKey(c.TenantID, usernameKey(old.Username))); err != nil {
			return err
		}
		if err := idx.Put(compoundKey(c.TenantID, usernameKey(c.Username)), []byte(c.ID)); err != nil {
			return err
		}
	}

	if err := s.putToken(tx, c, old.AccessToken); err != nil {
		return err
	}

	b, err := tx.Bucket(credentialBucket)
	if err != nil {
		return err
	}
	return s.putCredential(b, c)
}

// DeleteCredential removes a credential and its index entries.
func (s *Store) DeleteCredential(ctx context.Context, tx kv.Tx, tenantID, id string) (retErr error) {
	defer func() {
		retErr = ErrInternalServiceError(retErr, tenantdb.OpDeleteCredential)
	}()

	c, err := s.GetCredential(ctx, tx, tenantID, id)
	if err != nil {
		return err
	}
	return s.deleteCredential(tx, c)
}

// DeleteTenantCredentials removes every credential of a tenant.
func (s *Store) DeleteTenantCredentials(ctx context.Context, tx kv.Tx, tenantID string) error {
	cs, _, err := s.ListCredentials(ctx, tx, tenantdb.CredentialFilter{TenantID: tenantID})
	if err != nil {
		return err
	}
	for _, c := range cs {
		if err := s.deleteCredential(tx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteCredential(tx kv.Tx, c *tenantdb.Credential) error {
	idx, err := tx.Bucket(credentialIndex)
	if err != nil {
		return err
	}
	if err := idx.Delete(compoundKey(c.TenantID, usernameKey(c.Username))); err != nil {
		return err
	}

	if c.AccessToken != "" {
		tokens, err := tx.Bucket(credentialTokenIndex)
		if err != nil {
			return err
		}
		if err := tokens.Delete([]byte(c.AccessToken)); err != nil {
			return err
		}
	}

	b, err := tx.Bucket(credentialBucket)
	if err != nil {
		return err
	}
	return b.Delete(compoundKey(c.TenantID, c.ID))
}

func (s *Store) putToken(tx kv.Tx, c *tenantdb.Credential, previous string) error {
	if previous == c.AccessToken {
		return nil
	}

	tokens, err := tx.Bucket(credentialTokenIndex)
	if err != nil {
		return err
	}
	if previous != "" {
		if err := tokens.Delete([]byte(previous)); err != nil {
			return err
		}
	}
	if c.AccessToken != "" {
		return tokens.Put([]byte(c.AccessToken), compoundKey(c.TenantID, c.ID))
	}
	return nil
}

func (s *Store) putCredential(b kv.Bucket, c *tenantdb.Credential) error {
	v, err := marshalCredential(c)
	if err != nil {
		return err
	}
	return b.Put(compoundKey(c.TenantID, c.ID), v)
}
