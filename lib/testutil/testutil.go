package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"volleymanager-backend/lib/telemetry"

	_ "modernc.org/sqlite"
)

type DBParams struct {
	Name   string
	Schema string
}

// SetupDB opens a fresh sqlite database with the given schema in a
// temporary directory, telemetry is set up for the test as well.
func SetupDB(t testing.TB, params DBParams) *sql.DB {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))
	t.Cleanup(cleanup)

	database, err := sql.Open("sqlite", filepath.Join(t.TempDir(), params.Name+".db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	_, err = database.Exec(params.Schema)
	if err != nil {
		t.Fatal(err)
	}
	return database
}
