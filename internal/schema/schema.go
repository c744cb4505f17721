// Package schema declares the engine's tables/indexes/FTS virtual
// tables/triggers and performs idempotent self-heal migrations (spec §4.2).
// The inline backtick DDL strings plus "CREATE TABLE/INDEX IF NOT EXISTS"
// idempotency mirror other_examples' steveyegge-beads internal/storage/
// sqlite/schema.go; the FTS-repair-via-introspection approach is new (no
// example repo does FTS repair) but follows the same "validate identifiers,
// only touch what introspection positively identifies as legacy" discipline
// spec §9 calls for.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/snapetech/mjrindex/internal/apperr"
	"github.com/snapetech/mjrindex/internal/store"
)

// TargetVersion is the schema version this engine migrates to.
const TargetVersion = 8

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate into DDL.
// Any table or column name used in a self-heal path MUST pass this check;
// invalid names fail closed with INVALID_INPUT without touching the store
// (spec §4.2, §9).
func ValidIdentifier(name string) bool {
	return identifierRE.MatchString(name)
}

const createTablesDDL = `
CREATE TABLE IF NOT EXISTS assets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filepath TEXT NOT NULL,
	filename TEXT NOT NULL,
	subfolder TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	root_id TEXT,
	kind TEXT NOT NULL,
	ext TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	mtime INTEGER NOT NULL DEFAULT 0,
	width INTEGER,
	height INTEGER,
	duration REAL,
	content_hash TEXT,
	phash TEXT,
	hash_state TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	indexed_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	UNIQUE(filepath, source, root_id)
);

CREATE TABLE IF NOT EXISTS asset_metadata (
	asset_id INTEGER PRIMARY KEY REFERENCES assets(id) ON DELETE CASCADE,
	rating INTEGER NOT NULL DEFAULT 0,
	tags TEXT NOT NULL DEFAULT '[]',
	tags_text TEXT NOT NULL DEFAULT '',
	workflow_hash TEXT NOT NULL DEFAULT '',
	has_workflow INTEGER NOT NULL DEFAULT 0,
	has_generation_data INTEGER NOT NULL DEFAULT 0,
	metadata_quality TEXT NOT NULL DEFAULT 'none',
	metadata_raw TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS scan_journal (
	filepath TEXT PRIMARY KEY,
	dir_path TEXT NOT NULL,
	state_hash TEXT NOT NULL,
	mtime INTEGER NOT NULL,
	size INTEGER NOT NULL,
	last_seen TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS metadata_cache (
	filepath TEXT PRIMARY KEY,
	state_hash TEXT NOT NULL,
	metadata_hash TEXT NOT NULL,
	metadata_raw TEXT NOT NULL,
	last_updated TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// indexDecls lists the CREATE INDEX statements EnsureIndexesAndTriggers
// runs, each idempotent via IF NOT EXISTS.
var indexDecls = []string{
	`CREATE INDEX IF NOT EXISTS idx_assets_filename ON assets(filename)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_subfolder ON assets(subfolder)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_kind ON assets(kind)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_mtime ON assets(mtime)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_kind_mtime ON assets(kind, mtime)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_source ON assets(source)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_root_id ON assets(root_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_source_root ON assets(source, root_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_source_mtime_desc ON assets(source, mtime DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_content_hash ON assets(content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_phash ON assets(phash)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_hash_state ON assets(hash_state)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_list_covering ON assets(source, mtime DESC, id, filename, filepath, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_metadata_has_workflow ON asset_metadata(has_workflow) WHERE has_workflow = 1`,
	`CREATE INDEX IF NOT EXISTS idx_asset_metadata_has_gendata ON asset_metadata(has_generation_data) WHERE has_generation_data = 1`,
}

const assetsTriggersDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS assets_fts USING fts5(
	filename, subfolder, content='assets', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS assets_ai AFTER INSERT ON assets BEGIN
	INSERT INTO assets_fts(rowid, filename, subfolder) VALUES (new.id, new.filename, new.subfolder);
END;

CREATE TRIGGER IF NOT EXISTS assets_ad AFTER DELETE ON assets BEGIN
	INSERT INTO assets_fts(assets_fts, rowid, filename, subfolder) VALUES('delete', old.id, old.filename, old.subfolder);
END;

CREATE TRIGGER IF NOT EXISTS assets_au AFTER UPDATE ON assets BEGIN
	INSERT INTO assets_fts(assets_fts, rowid, filename, subfolder) VALUES('delete', old.id, old.filename, old.subfolder);
	INSERT INTO assets_fts(rowid, filename, subfolder) VALUES (new.id, new.filename, new.subfolder);
END;
`

// asset_metadata_fts is contentless (spec §3/§6): it has no backing content
// table of its own, so its maintenance triggers always use explicit
// delete+insert, never UPDATE ...fts (unsupported for this FTS shape).
const assetMetadataFTSDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS asset_metadata_fts USING fts5(
	tags, tags_text, metadata_text, content=''
);

CREATE TRIGGER IF NOT EXISTS asset_metadata_ai AFTER INSERT ON asset_metadata BEGIN
	INSERT INTO asset_metadata_fts(rowid, tags, tags_text, metadata_text)
	VALUES (new.asset_id, new.tags, new.tags_text, new.metadata_raw);
END;

CREATE TRIGGER IF NOT EXISTS asset_metadata_ad AFTER DELETE ON asset_metadata BEGIN
	INSERT INTO asset_metadata_fts(asset_metadata_fts, rowid, tags, tags_text, metadata_text)
	VALUES('delete', old.asset_id, old.tags, old.tags_text, old.metadata_raw);
END;

CREATE TRIGGER IF NOT EXISTS asset_metadata_au AFTER UPDATE ON asset_metadata BEGIN
	INSERT INTO asset_metadata_fts(asset_metadata_fts, rowid, tags, tags_text, metadata_text)
	VALUES('delete', old.asset_id, old.tags, old.tags_text, old.metadata_raw);
	INSERT INTO asset_metadata_fts(rowid, tags, tags_text, metadata_text)
	VALUES (new.asset_id, new.tags, new.tags_text, new.metadata_raw);
END;
`

// columnDecls lists (table, column, declaration) tuples ensureColumnsExist
// checks against PRAGMA table_info and backfills via ALTER TABLE ADD COLUMN.
// Declared here (rather than only in createTablesDDL) so upgrading an older
// database that predates a column still converges to the target shape.
type columnDecl struct {
	table, column, decl string
}

var columnDecls = []columnDecl{
	{"assets", "content_hash", "TEXT"},
	{"assets", "phash", "TEXT"},
	{"assets", "hash_state", "TEXT"},
	{"asset_metadata", "metadata_quality", "TEXT NOT NULL DEFAULT 'none'"},
}

// Migrator drives schema creation and self-heal against a Store.
type Migrator struct {
	st *store.Store
}

func NewMigrator(st *store.Store) *Migrator { return &Migrator{st: st} }

// InitSchema idempotently creates all tables. Indexes, FTS tables and
// triggers are created by EnsureIndexesAndTriggers.
func (m *Migrator) InitSchema(ctx context.Context) error {
	return m.st.ExecuteScript(ctx, createTablesDDL)
}

// EnsureColumnsExist checks PRAGMA table_info for each declared column and
// ALTERs it in if missing.
func (m *Migrator) EnsureColumnsExist(ctx context.Context) error {
	for _, c := range columnDecls {
		if !ValidIdentifier(c.table) || !ValidIdentifier(c.column) {
			return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("invalid identifier in column decl: %s.%s", c.table, c.column))
		}
		exists, err := m.columnExists(ctx, c.table, c.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.decl)
		if err := m.st.ExecuteScript(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.CodeDBError, "add missing column "+c.table+"."+c.column, err)
		}
	}
	return nil
}

func (m *Migrator) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := m.st.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return false, err
		}
		// PRAGMA table_info columns: cid, name, type, notnull, dflt_value, pk
		for i, c := range cols {
			if c == "name" {
				if name, ok := vals[i].(string); ok && name == column {
					return true, nil
				}
				if b, ok := vals[i].([]byte); ok && string(b) == column {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// EnsureIndexesAndTriggers idempotently creates indexes and FTS
// tables/triggers, then runs FTS repair.
func (m *Migrator) EnsureIndexesAndTriggers(ctx context.Context) error {
	for _, stmt := range indexDecls {
		if err := m.st.ExecuteScript(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.CodeDBError, "create index", err)
		}
	}
	if err := m.st.ExecuteScript(ctx, assetsTriggersDDL); err != nil {
		return apperr.Wrap(apperr.CodeDBError, "create assets FTS/triggers", err)
	}
	if err := m.st.ExecuteScript(ctx, assetMetadataFTSDDL); err != nil {
		// Non-fatal to the rest of schema (spec §4.2): log and continue, the
		// FTS repair pass below may still be able to fix things up next run.
		log.Printf("schema: create asset_metadata FTS failed (will attempt repair): %v", err)
	}
	if err := m.RepairAssetMetadataFTS(ctx); err != nil {
		return apperr.Wrap(apperr.CodeFTSRepairFailed, "repair asset_metadata FTS", err)
	}
	return nil
}

// MigrateSchema runs InitSchema, EnsureColumnsExist, EnsureIndexesAndTriggers
// in order, sets the schema version to TargetVersion, and stores the DDL
// fingerprint. A failure in any step aborts the overall migration (the
// caller should refuse to come up); a fingerprint mismatch is logged, not
// fatal.
func (m *Migrator) MigrateSchema(ctx context.Context) error {
	if err := m.InitSchema(ctx); err != nil {
		return err
	}
	if err := m.EnsureColumnsExist(ctx); err != nil {
		return err
	}
	if err := m.EnsureIndexesAndTriggers(ctx); err != nil {
		return err
	}
	if err := m.st.SetSchemaVersion(ctx, TargetVersion); err != nil {
		return err
	}
	fp := Fingerprint()
	prev, had, err := m.st.GetKV(ctx, "schema_ddl_hash")
	if err != nil {
		return err
	}
	if had && prev != fp {
		log.Printf("schema: DDL fingerprint drift detected (stored=%s computed=%s)", prev, fp)
	}
	if err := m.st.SetKV(ctx, "schema_ddl_hash", fp); err != nil {
		return err
	}
	return nil
}

// Fingerprint returns a stable hash of the declared DDL, for diagnostic
// drift detection (spec §4.2).
func Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(createTablesDDL))
	for _, s := range indexDecls {
		h.Write([]byte(s))
	}
	h.Write([]byte(assetsTriggersDDL))
	h.Write([]byte(assetMetadataFTSDDL))
	return hex.EncodeToString(h.Sum(nil))
}

// RebuildFTS issues the assets_fts 'rebuild' command and runs FTS repair.
func (m *Migrator) RebuildFTS(ctx context.Context) error {
	if _, err := m.st.Execute(ctx, `INSERT INTO assets_fts(assets_fts) VALUES('rebuild')`); err != nil {
		return apperr.Wrap(apperr.CodeFTSRepairFailed, "rebuild assets_fts", err)
	}
	return m.RepairAssetMetadataFTS(ctx)
}

// RepairAssetMetadataFTS inspects the existing FTS/trigger DDL and, if it
// detects a legacy shape (content_rowid='asset_id', a missing tags_text
// column, or a trigger using UPDATE ...fts — unsupported for this FTS
// table), drops and rebuilds the FTS table and triggers inside a single
// IMMEDIATE transaction, then repopulates from asset_metadata. Never drops
// asset_metadata itself (spec §4.2, §9).
func (m *Migrator) RepairAssetMetadataFTS(ctx context.Context) error {
	legacy, err := m.detectLegacyAssetMetadataFTS(ctx)
	if err != nil {
		return err
	}
	if !legacy {
		return nil
	}
	log.Printf("schema: legacy asset_metadata_fts shape detected, rebuilding")
	return m.st.WithTx(ctx, store.TxImmediate, func(ctx context.Context) error {
		for _, stmt := range []string{
			`DROP TRIGGER IF EXISTS asset_metadata_ai`,
			`DROP TRIGGER IF EXISTS asset_metadata_ad`,
			`DROP TRIGGER IF EXISTS asset_metadata_au`,
			`DROP TABLE IF EXISTS asset_metadata_fts`,
		} {
			if err := m.st.ExecuteScript(ctx, stmt); err != nil {
				return err
			}
		}
		if err := m.st.ExecuteScript(ctx, assetMetadataFTSDDL); err != nil {
			return err
		}
		rows, err := m.st.Query(ctx, `SELECT asset_id, tags, tags_text, metadata_raw FROM asset_metadata`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var assetID int64
			var tags, tagsText, metaRaw string
			if err := rows.Scan(&assetID, &tags, &tagsText, &metaRaw); err != nil {
				return err
			}
			if _, err := m.st.Execute(ctx,
				`INSERT INTO asset_metadata_fts(rowid, tags, tags_text, metadata_text) VALUES (?, ?, ?, ?)`,
				assetID, tags, tagsText, metaRaw); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

func (m *Migrator) detectLegacyAssetMetadataFTS(ctx context.Context) (bool, error) {
	rows, err := m.st.Query(ctx, `SELECT sql FROM sqlite_master WHERE type IN ('table','trigger') AND name LIKE 'asset_metadata%'`)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := false
	for rows.Next() {
		var ddl string
		if err := rows.Scan(&ddl); err != nil {
			return false, err
		}
		upper := strings.ToUpper(ddl)
		if strings.Contains(upper, "CONTENT_ROWID='ASSET_ID'") || strings.Contains(upper, `CONTENT_ROWID="ASSET_ID"`) {
			found = true
		}
		if strings.Contains(upper, "UPDATE ASSET_METADATA_FTS") || strings.Contains(upper, "UPDATE \"ASSET_METADATA_FTS\"") {
			found = true
		}
	}
	if found {
		return true, nil
	}
	hasTable, err := m.st.HasTable(ctx, "asset_metadata_fts")
	if err != nil {
		return false, err
	}
	if !hasTable {
		return false, nil
	}
	// Missing tags_text column in an existing FTS table is also legacy.
	infoRows, err := m.st.Query(ctx, `PRAGMA table_info(asset_metadata_fts)`)
	if err != nil {
		// Some sqlite builds don't expose table_info for virtual tables; not
		// fatal, just skip this particular legacy check.
		return false, nil
	}
	defer infoRows.Close()
	hasTagsText := false
	for infoRows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt any
		if err := infoRows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, nil
		}
		if name == "tags_text" {
			hasTagsText = true
		}
	}
	return !hasTagsText, nil
}
