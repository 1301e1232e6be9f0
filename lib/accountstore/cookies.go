package accountstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
)

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SaveCookies remembers the session cookies of username so a later process
// can resume the backend session.
func (s Store) SaveCookies(ctx context.Context, username string, cookies []*http.Cookie) error {
	stored := make([]storedCookie, len(cookies))
	for i, c := range cookies {
		stored[i] = storedCookie{Name: c.Name, Value: c.Value}
	}
	serialized, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return s.qry.UpsertAccountCookies(ctx, username, string(serialized), s.now().Unix())
}

// LoadCookies returns nil when no cookies were saved for username.
func (s Store) LoadCookies(ctx context.Context, username string) ([]*http.Cookie, error) {
	serialized, err := s.qry.GetAccountCookies(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored []storedCookie
	err = json.Unmarshal([]byte(serialized), &stored)
	if err != nil {
		return nil, err
	}
	cookies := make([]*http.Cookie, len(stored))
	for i, c := range stored {
		cookies[i] = &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"}
	}
	return cookies, nil
}

func (s Store) ClearCookies(ctx context.Context, username string) error {
	return s.qry.DeleteAccountCookies(ctx, username)
}
