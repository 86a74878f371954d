package resume

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"wardial-server/pkg/errors"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// SourceKind identifies a physical dialed-number storage format.
type SourceKind int

const (
	// SourceCSV is a delimited text file with a header row containing a
	// phone_number column.
	SourceCSV SourceKind = iota + 1

	// SourceSQLite is an embedded database with a dial_results table.
	SourceSQLite
)

func (k SourceKind) String() string {
	switch k {
	case SourceCSV:
		return "csv"
	case SourceSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// SourceConfig names one dialed-number source. Construct it directly when
// the format is known, or via DetectSource to dispatch on file extension.
type SourceConfig struct {
	Kind SourceKind
	Path string
}

// DetectSource picks the source kind from the file extension. An
// unrecognized extension is a format error, not an empty result.
func DetectSource(path string) (SourceConfig, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return SourceConfig{Kind: SourceCSV, Path: path}, nil
	case ".db", ".sqlite", ".sqlite3":
		return SourceConfig{Kind: SourceSQLite, Path: path}, nil
	default:
		return SourceConfig{}, errors.NewSourceFormat(path,
			fmt.Sprintf("unsupported file extension %q, use .csv or .db", filepath.Ext(path)))
	}
}

// DialedSource reads the set of already-attempted numbers from one
// physical backend. Each call opens its own handle; nothing is cached
// across invocations, so concurrent resume sessions stay independent.
type DialedSource interface {
	ReadDialedNumbers() (map[string]struct{}, error)
}

// NewSource builds the reader for a source config. The match is
// exhaustive; an unknown kind is a programming error surfaced as a
// format error.
func NewSource(cfg SourceConfig, logger *logrus.Logger) (DialedSource, error) {
	switch cfg.Kind {
	case SourceCSV:
		return &csvSource{path: cfg.Path, logger: logger}, nil
	case SourceSQLite:
		return &sqliteSource{path: cfg.Path, logger: logger}, nil
	default:
		return nil, errors.NewSourceFormat(cfg.Path, fmt.Sprintf("unknown source kind %d", cfg.Kind))
	}
}

type csvSource struct {
	path   string
	logger *logrus.Logger
}

func (s *csvSource) ReadDialedNumbers() (map[string]struct{}, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewSourceNotFound(s.path)
		}
		return nil, errors.Wrap(err, "opening results file").WithField("path", s.path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.NewSourceFormat(s.path, "results file has no header row")
	}

	phoneCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "phone_number" {
			phoneCol = i
			break
		}
	}
	if phoneCol < 0 {
		return nil, errors.NewSourceFormat(s.path, "header row has no phone_number column")
	}

	dialed := make(map[string]struct{})
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewSourceFormat(s.path, fmt.Sprintf("malformed row: %v", err))
		}
		if phoneCol < len(row) && row[phoneCol] != "" {
			dialed[row[phoneCol]] = struct{}{}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"path":   s.path,
		"dialed": len(dialed),
	}).Info("Read already-dialed numbers from CSV")

	return dialed, nil
}

type sqliteSource struct {
	path   string
	logger *logrus.Logger
}

func (s *sqliteSource) ReadDialedNumbers() (map[string]struct{}, error) {
	// sql.Open would happily create an empty database file, which must
	// stay a not-found error rather than an empty dialed set.
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, errors.NewSourceNotFound(s.path)
	}

	db, err := sql.Open("sqlite3", s.path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "opening results database").WithField("path", s.path)
	}
	defer db.Close()

	rows, err := db.Query("SELECT phone_number FROM dial_results")
	if err != nil {
		return nil, errors.NewSourceFormat(s.path, fmt.Sprintf("querying dial_results: %v", err))
	}
	defer rows.Close()

	dialed := make(map[string]struct{})
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, errors.NewSourceFormat(s.path, fmt.Sprintf("scanning dial_results row: %v", err))
		}
		if number != "" {
			dialed[number] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSourceFormat(s.path, fmt.Sprintf("reading dial_results: %v", err))
	}

	s.logger.WithFields(logrus.Fields{
		"path":   s.path,
		"dialed": len(dialed),
	}).Info("Read already-dialed numbers from SQLite")

	return dialed, nil
}
