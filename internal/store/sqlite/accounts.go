package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bili_passport/internal/model"
)

// ErrAccountNotFound 表示归档里没有该 mid。
var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `mid, tel, access_token, refresh_token, expires_in, saved_at, cookies_json, raw_token_info, raw_cookie_info, created_at, updated_at`

// UpsertAccount 按 mid 覆盖保存最近一次登录的凭证，created_at 保留首次写入时间。
func (s *Store) UpsertAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.Mid <= 0 {
		acc.Mid = acc.Credential.Mid
	}
	if acc.Mid <= 0 {
		return model.Account{}, errors.New("mid is required")
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	cookies := acc.Credential.Cookies
	if cookies == nil {
		cookies = map[string]string{}
	}
	cookiesJSON, err := json.Marshal(cookies)
	if err != nil {
		return model.Account{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mid) DO UPDATE SET
			tel = CASE WHEN excluded.tel = '' THEN accounts.tel ELSE excluded.tel END,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_in = excluded.expires_in,
			saved_at = excluded.saved_at,
			cookies_json = excluded.cookies_json,
			raw_token_info = excluded.raw_token_info,
			raw_cookie_info = excluded.raw_cookie_info,
			updated_at = excluded.updated_at
	`, acc.Mid, acc.Tel, acc.Credential.AccessToken, acc.Credential.RefreshToken, acc.Credential.ExpiresIn, acc.Credential.SavedAt,
		string(cookiesJSON), string(acc.Credential.RawTokenInfo), string(acc.Credential.RawCookieInfo),
		acc.CreatedAt.UnixMilli(), acc.UpdatedAt.UnixMilli())
	if err != nil {
		return model.Account{}, err
	}

	return s.GetAccountByMid(ctx, acc.Mid)
}

func (s *Store) GetAccountByMid(ctx context.Context, mid int64) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE mid = ?`, mid)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("%w: mid=%d", ErrAccountNotFound, mid)
		}
		return model.Account{}, err
	}
	return acc, nil
}

// LoadCredential 取出某个 mid 归档的凭证。
func (s *Store) LoadCredential(ctx context.Context, mid int64) (model.Credential, error) {
	acc, err := s.GetAccountByMid(ctx, mid)
	if err != nil {
		return model.Credential{}, err
	}
	return acc.Credential, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAccount(ctx context.Context, mid int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE mid = ?`, mid)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: mid=%d", ErrAccountNotFound, mid)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc rowScanner) (model.Account, error) {
	var row struct {
		mid           int64
		tel           string
		accessToken   string
		refreshToken  string
		expiresIn     int64
		savedAt       int64
		cookies       string
		rawTokenInfo  string
		rawCookieInfo string
		createdAt     int64
		updatedAt     int64
	}
	if err := sc.Scan(&row.mid, &row.tel, &row.accessToken, &row.refreshToken, &row.expiresIn, &row.savedAt,
		&row.cookies, &row.rawTokenInfo, &row.rawCookieInfo, &row.createdAt, &row.updatedAt); err != nil {
		return model.Account{}, err
	}
	cookies := map[string]string{}
	_ = json.Unmarshal([]byte(row.cookies), &cookies)

	cred := model.Credential{
		SavedAt:      row.savedAt,
		AccessToken:  row.accessToken,
		RefreshToken: row.refreshToken,
		ExpiresIn:    row.expiresIn,
		Mid:          row.mid,
		Cookies:      cookies,
	}
	if row.rawTokenInfo != "" {
		cred.RawTokenInfo = json.RawMessage(row.rawTokenInfo)
	}
	if row.rawCookieInfo != "" {
		cred.RawCookieInfo = json.RawMessage(row.rawCookieInfo)
	}
	return model.Account{
		Mid:        row.mid,
		Tel:        row.tel,
		Credential: cred,
		CreatedAt:  time.UnixMilli(row.createdAt),
		UpdatedAt:  time.UnixMilli(row.updatedAt),
	}, nil
}
