package accountstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"volleymanager-backend/lib/accountstore/db"
	"volleymanager-backend/lib/scrapers/volleymanager"
	"volleymanager-backend/lib/textutil"

	_ "modernc.org/sqlite"
)

var ErrUnknownOccupation = errors.New("occupation does not belong to the account")

// Store persists the derived user and active occupation of every account,
// it is the state the identity derivation is fed with on the next refresh.
type Store struct {
	db  *sql.DB
	qry *db.Queries
	now func() time.Time
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
		now: time.Now,
	}
}

// Open opens (or creates) a sqlite database at path and applies the schema.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		database.Close()
		return Store{}, fmt.Errorf("apply schema: %w", err)
	}
	return NewStore(database), nil
}

func (s Store) Close() error {
	return s.db.Close()
}

type AccountState struct {
	User               volleymanager.UserProfile
	ActiveOccupationId string
	UpdatedAt          time.Time
}

// Get returns nil without an error when nothing is known about username.
func (s Store) Get(ctx context.Context, username string) (*AccountState, error) {
	row, err := s.qry.GetAccountState(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var occupations []volleymanager.Occupation
	err = json.Unmarshal([]byte(row.Occupations), &occupations)
	if err != nil {
		return nil, fmt.Errorf("decode occupations of %s: %w", username, err)
	}

	return &AccountState{
		User: volleymanager.UserProfile{
			Id:          row.UserID,
			FirstName:   row.FirstName,
			LastName:    row.LastName,
			Occupations: occupations,
		},
		ActiveOccupationId: row.ActiveOccupationID,
		UpdatedAt:          time.Unix(row.UpdatedAt, 0),
	}, nil
}

func (s Store) Put(ctx context.Context, username string, derived volleymanager.DerivedUser) error {
	occupations := derived.User.Occupations
	if occupations == nil {
		occupations = []volleymanager.Occupation{}
	}
	serialized, err := json.Marshal(occupations)
	if err != nil {
		return err
	}
	return s.qry.UpsertAccountState(ctx, db.AccountState{
		Username:           username,
		UserID:             derived.User.Id,
		FirstName:          derived.User.FirstName,
		LastName:           derived.User.LastName,
		Occupations:        string(serialized),
		ActiveOccupationID: derived.ActiveOccupationId,
		UpdatedAt:          s.now().Unix(),
	})
}

// Refresh derives the user of username from a freshly scraped party against
// the stored state and persists the result.
func (s Store) Refresh(ctx context.Context, username string, party *volleymanager.ActiveParty) (volleymanager.DerivedUser, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return volleymanager.DerivedUser{}, err
	}
	defer tx.Rollback()
	txstore := Store{db: s.db, qry: s.qry.WithTx(tx), now: s.now}

	previous, err := txstore.Get(ctx, username)
	if err != nil {
		return volleymanager.DerivedUser{}, err
	}

	var previousUser *volleymanager.UserProfile
	previousActive := ""
	if previous != nil {
		previousUser = &previous.User
		previousActive = previous.ActiveOccupationId
	}

	derived := volleymanager.DeriveUser(party, previousUser, previousActive)
	if previous != nil && previousActive != derived.ActiveOccupationId {
		slog.InfoContext(ctx, "active occupation changed",
			"username", username,
			"from", previousActive,
			"to", derived.ActiveOccupationId,
		)
	}

	err = txstore.Put(ctx, username, derived)
	if err != nil {
		return volleymanager.DerivedUser{}, err
	}
	return derived, tx.Commit()
}

// SetActiveOccupation switches the active occupation to one the account
// already holds.
func (s Store) SetActiveOccupation(ctx context.Context, username, occupationId string) error {
	state, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	if state == nil {
		return sql.ErrNoRows
	}
	known := slices.ContainsFunc(state.User.Occupations, func(o volleymanager.Occupation) bool {
		return o.Id == occupationId
	})
	if !known {
		return ErrUnknownOccupation
	}
	_, err = s.qry.SetActiveOccupation(ctx, username, occupationId, s.now().Unix())
	return err
}

func (s Store) Delete(ctx context.Context, username string) error {
	return s.qry.DeleteAccountState(ctx, username)
}

// FindOccupation resolves query to one of occupations by id or, ignoring
// case, by association code. A miss names the closest candidate.
func FindOccupation(occupations []volleymanager.Occupation, query string) (volleymanager.Occupation, error) {
	for _, o := range occupations {
		if o.Id == query {
			return o, nil
		}
	}
	for _, o := range occupations {
		if o.AssociationCode != "" && strings.EqualFold(o.AssociationCode, query) {
			return o, nil
		}
	}

	var candidates []string
	for _, o := range occupations {
		candidates = append(candidates, o.Id)
		if o.AssociationCode != "" {
			candidates = append(candidates, o.AssociationCode)
		}
	}
	closest, similarity := textutil.ClosestMatch(query, candidates)
	if similarity > 0.7 {
		return volleymanager.Occupation{}, fmt.Errorf("%w: %q, did you mean %q?", ErrUnknownOccupation, query, closest)
	}
	return volleymanager.Occupation{}, fmt.Errorf("%w: %q", ErrUnknownOccupation, query)
}
