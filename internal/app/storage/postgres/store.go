// Package postgres implements storage.Store on top of a raw
// database/sql + lib/pq connection, following the scan-helper / CRUD
// idiom used throughout the reference service's postgres store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ComputClaw/airlock/internal/app/domain"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// Store implements storage.Store backed by postgres.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// rowScanner lets scan helpers share code between *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- credentials ---------------------------------------------------------

func scanCredential(s rowScanner) (*domain.Credential, error) {
	var c domain.Credential
	var value []byte
	if err := s.Scan(&c.ID, &c.Name, &c.Description, &value, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Value = value
	return &c, nil
}

func (s *Store) ListCredentials(ctx context.Context) ([]*domain.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, value, created_at, updated_at FROM credentials ORDER BY name`)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "list credentials", err)
	}
	defer rows.Close()

	var out []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, aerr.Wrap(aerr.CodeInternal, "scan credential", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCredentialByName(ctx context.Context, name string) (*domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, value, created_at, updated_at FROM credentials WHERE name = $1`, name)
	c, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "get credential", err)
	}
	return c, nil
}

func (s *Store) CreateCredential(ctx context.Context, c *domain.Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, name, description, value, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Name, c.Description, c.Value, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return aerr.New(aerr.CodeNameTaken, "credential name already exists")
	}
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "create credential", err)
	}
	return nil
}

func (s *Store) UpdateCredential(ctx context.Context, c *domain.Credential) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET description = $2, value = $3, updated_at = $4 WHERE name = $1`,
		c.Name, c.Description, c.Value, c.UpdatedAt)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "update credential", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return aerr.New(aerr.CodeNotFound, "credential not found")
	}
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM profile_credentials WHERE credential_name = $1`, name); err != nil {
		return aerr.Wrap(aerr.CodeInternal, "drop credential refs", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE name = $1`, name)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "delete credential", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return aerr.New(aerr.CodeNotFound, "credential not found")
	}
	return aerr.Wrap(aerr.CodeInternal, "commit", tx.Commit())
}

// --- profiles --------------------------------------------------------------

func scanProfile(s rowScanner) (*domain.Profile, error) {
	var p domain.Profile
	var keyID sql.NullString
	var keySecret []byte
	var expiresAt, lastUsedAt sql.NullTime

	if err := s.Scan(&p.ID, &p.Description, &p.Locked, &keyID, &keySecret, &expiresAt,
		&p.Revoked, &p.CreatedAt, &p.UpdatedAt, &lastUsedAt); err != nil {
		return nil, err
	}
	p.KeyID = keyID.String
	p.KeySecretEncrypted = keySecret
	p.ExpiresAt = fromNullTime(expiresAt)
	p.LastUsedAt = fromNullTime(lastUsedAt)
	return &p, nil
}

func (s *Store) credentialRefs(ctx context.Context, profileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT credential_name FROM profile_credentials WHERE profile_id = $1 ORDER BY credential_name`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const profileColumns = `id, description, locked, key_id, key_secret_encrypted, expires_at, revoked, created_at, updated_at, last_used_at`

func (s *Store) ListProfiles(ctx context.Context) ([]*domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "list profiles", err)
	}
	defer rows.Close()

	var out []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, aerr.Wrap(aerr.CodeInternal, "scan profile", err)
		}
		refs, err := s.credentialRefs(ctx, p.ID)
		if err != nil {
			return nil, aerr.Wrap(aerr.CodeInternal, "load profile refs", err)
		}
		p.CredentialNames = refs
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) getProfileByQuery(ctx context.Context, query, arg string) (*domain.Profile, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "get profile", err)
	}
	refs, err := s.credentialRefs(ctx, p.ID)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "load profile refs", err)
	}
	p.CredentialNames = refs
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	return s.getProfileByQuery(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (s *Store) GetProfileByKeyID(ctx context.Context, keyID string) (*domain.Profile, error) {
	return s.getProfileByQuery(ctx, `SELECT `+profileColumns+` FROM profiles WHERE key_id = $1`, keyID)
}

func (s *Store) CreateProfile(ctx context.Context, p *domain.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, description, locked, key_id, key_secret_encrypted, expires_at, revoked, created_at, updated_at, last_used_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.Description, p.Locked, toNullString(p.KeyID), p.KeySecretEncrypted,
		toNullTime(p.ExpiresAt), p.Revoked, p.CreatedAt, p.UpdatedAt, toNullTime(p.LastUsedAt))
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "create profile", err)
	}
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, p *domain.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET description=$2, locked=$3, key_id=$4, key_secret_encrypted=$5,
		 expires_at=$6, revoked=$7, updated_at=$8, last_used_at=$9 WHERE id=$1`,
		p.ID, p.Description, p.Locked, toNullString(p.KeyID), p.KeySecretEncrypted,
		toNullTime(p.ExpiresAt), p.Revoked, p.UpdatedAt, toNullTime(p.LastUsedAt))
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "update profile", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "delete profile", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	return nil
}

func (s *Store) AddCredentialRef(ctx context.Context, profileID, credentialName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_credentials (profile_id, credential_name) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
		profileID, credentialName)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "add credential ref", err)
	}
	return nil
}

func (s *Store) RemoveCredentialRef(ctx context.Context, profileID, credentialName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM profile_credentials WHERE profile_id = $1 AND credential_name = $2`,
		profileID, credentialName)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "remove credential ref", err)
	}
	return nil
}

func (s *Store) RemoveCredentialRefEverywhere(ctx context.Context, credentialName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profile_credentials WHERE credential_name = $1`, credentialName)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "remove credential refs", err)
	}
	return nil
}

func (s *Store) LockedProfilesReferencing(ctx context.Context, credentialName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id FROM profiles p JOIN profile_credentials pc ON pc.profile_id = p.id
		 WHERE pc.credential_name = $1 AND p.locked = true AND p.revoked = false`,
		credentialName)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "locked profiles referencing", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, aerr.Wrap(aerr.CodeInternal, "scan profile id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) TouchLastUsed(ctx context.Context, profileID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET last_used_at = $2 WHERE id = $1`, profileID, at)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "touch last used", err)
	}
	return nil
}

// --- executions --------------------------------------------------------------

func (s *Store) SaveExecution(ctx context.Context, e *domain.Execution) error {
	resultJSON, err := json.Marshal(e.Result)
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "marshal execution result", err)
	}

	var llmPrompt, llmModel sql.NullString
	if e.PendingLLM != nil {
		llmPrompt = toNullString(e.PendingLLM.Prompt)
		llmModel = toNullString(e.PendingLLM.Model)
	}
	var execMS sql.NullInt64
	if e.ExecutionTimeMS != nil {
		execMS = sql.NullInt64{Int64: *e.ExecutionTimeMS, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, profile_id, script, status, result, stdout, stderr, error_message,
			llm_prompt, llm_model, execution_time_ms, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, result = EXCLUDED.result, stdout = EXCLUDED.stdout,
			stderr = EXCLUDED.stderr, error_message = EXCLUDED.error_message,
			llm_prompt = EXCLUDED.llm_prompt, llm_model = EXCLUDED.llm_model,
			execution_time_ms = EXCLUDED.execution_time_ms, completed_at = EXCLUDED.completed_at`,
		e.ID, e.ProfileID, e.Script, e.Status, resultJSON, e.Stdout, e.Stderr, e.ErrorMessage,
		llmPrompt, llmModel, execMS, e.CreatedAt, toNullTime(e.CompletedAt))
	if err != nil {
		return aerr.Wrap(aerr.CodeInternal, "save execution", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, script, status, result, stdout, stderr, error_message,
			llm_prompt, llm_model, execution_time_ms, created_at, completed_at
		FROM executions WHERE id = $1`, id)

	var e domain.Execution
	var resultJSON []byte
	var llmPrompt, llmModel sql.NullString
	var execMS sql.NullInt64
	var completedAt sql.NullTime

	err := row.Scan(&e.ID, &e.ProfileID, &e.Script, &e.Status, &resultJSON, &e.Stdout, &e.Stderr,
		&e.ErrorMessage, &llmPrompt, &llmModel, &execMS, &e.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "get execution", err)
	}

	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &e.Result); err != nil {
			return nil, aerr.Wrap(aerr.CodeInternal, "unmarshal execution result", err)
		}
	}
	if llmPrompt.Valid {
		e.PendingLLM = &domain.LLMRequest{Prompt: llmPrompt.String, Model: llmModel.String}
	}
	if execMS.Valid {
		v := execMS.Int64
		e.ExecutionTimeMS = &v
	}
	e.CompletedAt = fromNullTime(completedAt)
	return &e, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
