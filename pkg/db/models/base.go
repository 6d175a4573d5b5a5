package models

import "github.com/google/uuid"

// assignID gives a record a client-side UUID so inserts behave the same on
// Postgres and SQLite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
