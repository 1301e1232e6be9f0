package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type AccountState struct {
	Username           string
	UserID             string
	FirstName          string
	LastName           string
	Occupations        string
	ActiveOccupationID string
	UpdatedAt          int64
}

const getAccountState = `-- name: GetAccountState :one
select username, user_id, first_name, last_name, occupations, active_occupation_id, updated_at
from account_state
where username = ?
`

func (q *Queries) GetAccountState(ctx context.Context, username string) (AccountState, error) {
	row := q.db.QueryRowContext(ctx, getAccountState, username)
	var i AccountState
	err := row.Scan(
		&i.Username,
		&i.UserID,
		&i.FirstName,
		&i.LastName,
		&i.Occupations,
		&i.ActiveOccupationID,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertAccountState = `-- name: UpsertAccountState :exec
insert into account_state (
    username, user_id, first_name, last_name, occupations, active_occupation_id, updated_at
) values (?, ?, ?, ?, ?, ?, ?)
on conflict (username) do update set
    user_id = excluded.user_id,
    first_name = excluded.first_name,
    last_name = excluded.last_name,
    occupations = excluded.occupations,
    active_occupation_id = excluded.active_occupation_id,
    updated_at = excluded.updated_at
`

func (q *Queries) UpsertAccountState(ctx context.Context, arg AccountState) error {
	_, err := q.db.ExecContext(ctx, upsertAccountState,
		arg.Username,
		arg.UserID,
		arg.FirstName,
		arg.LastName,
		arg.Occupations,
		arg.ActiveOccupationID,
		arg.UpdatedAt,
	)
	return err
}

const setActiveOccupation = `-- name: SetActiveOccupation :execresult
update account_state set active_occupation_id = ?, updated_at = ?
where username = ?
`

func (q *Queries) SetActiveOccupation(ctx context.Context, username, occupationID string, updatedAt int64) (sql.Result, error) {
	return q.db.ExecContext(ctx, setActiveOccupation, occupationID, updatedAt, username)
}

const deleteAccountState = `-- name: DeleteAccountState :exec
delete from account_state where username = ?
`

func (q *Queries) DeleteAccountState(ctx context.Context, username string) error {
	_, err := q.db.ExecContext(ctx, deleteAccountState, username)
	return err
}

const getAccountCookies = `-- name: GetAccountCookies :one
select cookies from account_cookies where username = ?
`

func (q *Queries) GetAccountCookies(ctx context.Context, username string) (string, error) {
	row := q.db.QueryRowContext(ctx, getAccountCookies, username)
	var cookies string
	err := row.Scan(&cookies)
	return cookies, err
}

const upsertAccountCookies = `-- name: UpsertAccountCookies :exec
insert into account_cookies (username, cookies, updated_at) values (?, ?, ?)
on conflict (username) do update set
    cookies = excluded.cookies,
    updated_at = excluded.updated_at
`

func (q *Queries) UpsertAccountCookies(ctx context.Context, username, cookies string, updatedAt int64) error {
	_, err := q.db.ExecContext(ctx, upsertAccountCookies, username, cookies, updatedAt)
	return err
}

const deleteAccountCookies = `-- name: DeleteAccountCookies :exec
delete from account_cookies where username = ?
`

func (q *Queries) DeleteAccountCookies(ctx context.Context, username string) error {
	_, err := q.db.ExecContext(ctx, deleteAccountCookies, username)
	return err
}
