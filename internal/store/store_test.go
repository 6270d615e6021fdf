package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/wrenfield/starling/internal/database"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedFamily creates a family with one parent and one child and returns
// their ids.
func seedFamily(t *testing.T, db *sql.DB) (familyID, parentID, childID int64) {
	t.Helper()
	fs := NewFamilyStore(db)

	family, err := fs.CreateFamily("Wren")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	parent, err := fs.CreateMember(family.ID, "Pat", "parent", "#336699", "🦉")
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := fs.CreateMember(family.ID, "Sam", "child", "#993366", "🐦")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return family.ID, parent.ID, child.ID
}
