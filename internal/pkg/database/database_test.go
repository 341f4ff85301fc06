package database

import (
	"testing"

	"github.com/blogforge/backend/internal/model"
)

func TestInitDBSqliteMemory(t *testing.T) {
	db, err := InitDB("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	if !db.Migrator().HasTable(&model.PostIndex{}) {
		t.Fatalf("post_index table missing")
	}
	if !db.Migrator().HasTable(&model.CostRecord{}) {
		t.Fatalf("cost_entries table missing")
	}
}
