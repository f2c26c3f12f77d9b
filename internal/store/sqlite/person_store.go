package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/personlookup/internal/store"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	queryByIdentifier = `SELECT cpf, nome, sexo, nasc FROM cpf WHERE cpf = ?`
	queryByName       = `SELECT cpf, nome, sexo, nasc FROM cpf WHERE nome LIKE ?`
	queryByExactName  = `SELECT cpf, nome, sexo, nasc FROM cpf WHERE nome = ? COLLATE NOCASE`
)

// pragmas applied to every handle. The server never writes, so durability is relaxed.
var pragmas = []string{
	"PRAGMA synchronous=NORMAL",
	"PRAGMA journal_mode=WAL",
}

var _ store.PersonStore = (*PersonStore)(nil)

// PersonStore implements store.PersonStore on a read-only SQLite database file.
type PersonStore struct {
	db   *sql.DB
	path string
}

// Open opens the database at path read-only. The file must already exist.
//
// Pragma failures are logged and ignored: a read-only handle cannot switch the journal
// mode of a file that is not already in WAL mode, and that is not fatal for lookups.
func Open(ctx context.Context, path string) (*PersonStore, error) {
	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrOpen, path, err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrOpen, path, err)
	}

	// one handle, one underlying connection, so the pragmas stick
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %w", store.ErrOpen, path, err)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			loggerFrom(ctx).Debug().Err(err).Str("path", path).Str("pragma", pragma).Msg("Pragma not applied")
		}
	}

	return &PersonStore{db: db, path: path}, nil
}

func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Path: filepath.ToSlash(abs)}
	return "file:" + u.EscapedPath() + "?mode=ro", nil
}

// Path returns the file the store was opened from.
func (s *PersonStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *PersonStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PersonStore) ByIdentifier(ctx context.Context, id string) []store.PersonRecord {
	return s.query(ctx, queryByIdentifier, id)
}

// ByNameSubstring matches using SQLite LIKE, so ASCII letters compare case-insensitively
// and % or _ inside query act as wildcards.
func (s *PersonStore) ByNameSubstring(ctx context.Context, query string) []store.PersonRecord {
	return s.query(ctx, queryByName, "%"+query+"%")
}

func (s *PersonStore) ByExactName(ctx context.Context, name string) []store.PersonRecord {
	return s.query(ctx, queryByExactName, name)
}

// query runs stmt with a single bound argument. Any failure degrades to the rows read so far.
func (s *PersonStore) query(ctx context.Context, stmt string, arg string) []store.PersonRecord {
	logger := loggerFrom(ctx)
	results := []store.PersonRecord{}

	rows, err := s.db.QueryContext(ctx, stmt, arg)
	if err != nil {
		logger.Warn().Err(err).Str("path", s.path).Msg("Lookup statement failed, returning empty result")
		return results
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, sex, birth sql.NullString
		if err := rows.Scan(&id, &name, &sex, &birth); err != nil {
			logger.Warn().Err(err).Str("path", s.path).Msg("Failed to scan person row")
			return results
		}
		results = append(results, store.PersonRecord{
			Identifier: id.String,
			FullName:   name.String,
			Sex:        sex.String,
			BirthDate:  birth.String,
		})
	}
	if err := rows.Err(); err != nil {
		logger.Warn().Err(err).Str("path", s.path).Msg("Person row iteration failed")
	}

	return results
}

// loggerFrom returns the logger attached to ctx, or the global logger when there is none.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
