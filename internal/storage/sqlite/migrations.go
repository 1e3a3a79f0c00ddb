package sqlite

import "database/sql"

// schema stores every document as a JSON blob keyed by its collection path
// and id. collection_versions is bumped in the same transaction as each
// write so that watchers can detect changes with a single row read.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS collection_versions (
    collection TEXT PRIMARY KEY,
    version INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
