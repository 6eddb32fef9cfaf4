package sqlexec

import (
	"context"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec("DROP TABLE IF EXISTS goals").Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if err := db.Exec("CREATE TABLE goals (id INTEGER PRIMARY KEY, title TEXT, status TEXT)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	for _, row := range []string{
		"INSERT INTO goals (title, status) VALUES ('run a 10k', 'done')",
		"INSERT INTO goals (title, status) VALUES ('read weekly', 'active')",
		"INSERT INTO goals (title, status) VALUES ('sleep earlier', 'done')",
	} {
		if err := db.Exec(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

func TestGormExecutorRun(t *testing.T) {
	e := NewGormExecutor(openTestDB(t))

	res := e.Run(context.Background(), "SELECT title FROM goals WHERE status = 'done' ORDER BY id")
	if !res.Success {
		t.Fatalf("run failed: %s", res.ErrorMessage)
	}
	if res.RowCount != 2 || len(res.Rows) != 2 {
		t.Fatalf("rows = %d (%d), want 2", res.RowCount, len(res.Rows))
	}
	if got := res.Rows[0]["title"]; got != "run a 10k" {
		t.Fatalf("first row = %v", got)
	}
}

func TestGormExecutorRun_BadSQL(t *testing.T) {
	e := NewGormExecutor(openTestDB(t))

	res := e.Run(context.Background(), "SELECT nope FROM not_a_table")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.ErrorMessage == "" {
		t.Fatalf("error message missing")
	}
	if res.Rows != nil {
		t.Fatalf("rows set on failure: %v", res.Rows)
	}
}

func TestGormExecutorRun_EmptyResult(t *testing.T) {
	e := NewGormExecutor(openTestDB(t))

	res := e.Run(context.Background(), "SELECT * FROM goals WHERE status = 'dropped'")
	if !res.Success {
		t.Fatalf("run failed: %s", res.ErrorMessage)
	}
	if res.RowCount != 0 {
		t.Fatalf("row count = %d, want 0", res.RowCount)
	}
}
