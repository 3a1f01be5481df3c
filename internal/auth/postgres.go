package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"loctrec.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Scope lists are stored as
// jsonb; only parameterized queries are used.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Users ---------------------------------------------------------------------

func (s *PGStore) UpsertOAuthUser(ctx context.Context, provider, providerID, email, name, defaultRole string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`insert into users(id, oauth_provider, oauth_provider_id, email, name, role)
		 values($1,$2,$3,$4,$5,$6)
		 on conflict (oauth_provider, oauth_provider_id)
		 do update set name = excluded.name, email = excluded.email, updated_at = now()
		 returning id, email, name, role, created_at`,
		ids.New(), provider, providerID, email, name, defaultRole,
	)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		return User{}, err
	}
	u.OAuthProvider = provider
	u.OAuthProviderID = providerID
	return u, nil
}

func (s *PGStore) GetUser(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, name, role, created_at from users where id=$1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Organizations -------------------------------------------------------------

func (s *PGStore) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	scopes, err := json.Marshal(org.Scopes)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx,
		`insert into organizations(id, owner_id, name, contact_email, scopes)
		 values($1,$2,$3,$4,$5)
		 returning created_at`,
		org.ID, org.OwnerID, org.Name, org.ContactEmail, scopes,
	)
	return row.Scan(&org.CreatedAt)
}

func (s *PGStore) GetOrganization(ctx context.Context, id string) (Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, owner_id, name, contact_email, scopes, created_at, updated_at
		 from organizations where id=$1`, id)
	return scanOrganization(row)
}

func (s *PGStore) GetOwnedOrganization(ctx context.Context, id, ownerID string) (Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, owner_id, name, contact_email, scopes, created_at, updated_at
		 from organizations where id=$1 and owner_id=$2`, id, ownerID)
	return scanOrganization(row)
}

func (s *PGStore) UpdateOrganization(ctx context.Context, id, ownerID string, upd OrganizationUpdate) (Organization, error) {
	var scopes any
	if upd.Scopes != nil {
		data, err := json.Marshal(upd.Scopes)
		if err != nil {
			return Organization{}, err
		}
		scopes = data
	}
	row := s.db.QueryRowContext(ctx,
		`update organizations set
		   name = coalesce($3, name),
		   contact_email = coalesce($4, contact_email),
		   scopes = coalesce($5, scopes),
		   updated_at = now()
		 where id=$1 and owner_id=$2
		 returning id, owner_id, name, contact_email, scopes, created_at, updated_at`,
		id, ownerID, nullableString(upd.Name), nullableString(upd.ContactEmail), scopes,
	)
	return scanOrganization(row)
}

func scanOrganization(row *sql.Row) (Organization, error) {
	var (
		org       Organization
		scopes    []byte
		updatedAt sql.NullTime
	)
	if err := row.Scan(&org.ID, &org.OwnerID, &org.Name, &org.ContactEmail, &scopes, &org.CreatedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	if err := json.Unmarshal(scopes, &org.Scopes); err != nil {
		return Organization{}, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		org.UpdatedAt = &t
	}
	return org, nil
}

// API keys ------------------------------------------------------------------

func (s *PGStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		key.ID = ids.New()
	}
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx,
		`insert into api_keys(id, org_id, key_hash, key_prefix, label, scopes, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7)
		 returning created_at`,
		key.ID, key.OrgID, key.KeyHash, key.KeyPrefix, nullableLabel(key.Label), scopes, key.ExpiresAt,
	)
	return row.Scan(&key.CreatedAt)
}

func (s *PGStore) ListAPIKeys(ctx context.Context, orgID string) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, org_id, key_prefix, label, scopes, expires_at, last_used_at, created_at
		 from api_keys
		 where org_id=$1 and revoked_at is null
		 order by created_at desc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var (
			k          APIKey
			label      sql.NullString
			scopes     []byte
			expiresAt  sql.NullTime
			lastUsedAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.OrgID, &k.KeyPrefix, &label, &scopes, &expiresAt, &lastUsedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scopes, &k.Scopes); err != nil {
			return nil, err
		}
		k.Label = label.String
		if expiresAt.Valid {
			t := expiresAt.Time
			k.ExpiresAt = &t
		}
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			k.LastUsedAt = &t
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PGStore) RevokeAPIKey(ctx context.Context, orgID, keyID string) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set revoked_at = now()
		 where id=$1 and org_id=$2 and revoked_at is null`,
		keyID, orgID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) FindActiveAPIKeyByPrefix(ctx context.Context, prefix string) (APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, org_id, key_hash, key_prefix, scopes
		 from api_keys
		 where key_prefix=$1
		   and revoked_at is null
		   and (expires_at is null or expires_at > now())`, prefix)
	var (
		k      APIKey
		scopes []byte
	)
	if err := row.Scan(&k.ID, &k.OrgID, &k.KeyHash, &k.KeyPrefix, &scopes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return APIKey{}, ErrNotFound
		}
		return APIKey{}, err
	}
	if err := json.Unmarshal(scopes, &k.Scopes); err != nil {
		return APIKey{}, err
	}
	return k, nil
}

func (s *PGStore) TouchAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`update api_keys set last_used_at = now() where id=$1`, id)
	return err
}

// Refresh tokens ------------------------------------------------------------

func (s *PGStore) CreateRefreshToken(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at)
		 values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

func (s *PGStore) ClaimRefreshToken(ctx context.Context, tokenHash string) (string, string, error) {
	// Validate-and-revoke in one statement: of two concurrent refreshes with
	// the same raw token only one sees the row before revoked_at is set.
	row := s.db.QueryRowContext(ctx,
		`update refresh_tokens set revoked_at = now()
		 where token_hash=$1 and revoked_at is null and expires_at > now()
		 returning id, user_id`, tokenHash)
	var id, userID string
	if err := row.Scan(&id, &userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrNotFound
		}
		return "", "", err
	}
	return id, userID, nil
}

func (s *PGStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked_at = now()
		 where token_hash=$1 and revoked_at is null`, tokenHash)
	return err
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableLabel(label string) any {
	if label == "" {
		return nil
	}
	return label
}
