package reference

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
)

// DBSource reads the reference tables from a Postgres database instead of
// pipe-delimited files. Table names map directly to database table names;
// the column contract is identical.
type DBSource struct {
	db *sql.DB
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// OpenDB connects to the reference database.
func OpenDB(url string) (*DBSource, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return &DBSource{db: db}, nil
}

// Close releases the database connection.
func (d *DBSource) Close() error {
	return d.db.Close()
}

func (d *DBSource) Load(table string, required []string) ([]Row, error) {
	rows, ok, err := d.LoadOptional(table, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTable, table)
	}
	return rows, nil
}

func (d *DBSource) LoadOptional(table string, required []string) ([]Row, bool, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, false, fmt.Errorf("invalid table name %q", table)
	}

	var exists bool
	err := d.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		strings.ToLower(table),
	).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("check table %s: %w", table, err)
	}
	if !exists {
		return nil, false, nil
	}

	result, err := d.db.Query(fmt.Sprintf(`SELECT * FROM %s`, table))
	if err != nil {
		return nil, false, fmt.Errorf("query table %s: %w", table, err)
	}
	defer result.Close()

	cols, err := result.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("columns of %s: %w", table, err)
	}
	header := make([]string, len(cols))
	for i, col := range cols {
		header[i] = strings.ToUpper(col)
	}
	if err := checkColumns(table, header, required); err != nil {
		return nil, false, err
	}

	var out []Row
	values := make([]sql.NullString, len(cols))
	scan := make([]interface{}, len(cols))
	for i := range values {
		scan[i] = &values[i]
	}
	for result.Next() {
		if err := result.Scan(scan...); err != nil {
			return nil, false, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(Row, len(cols))
		for i, col := range header {
			if values[i].Valid {
				row[col] = values[i].String
			}
		}
		out = append(out, row)
	}
	if err := result.Err(); err != nil {
		return nil, false, fmt.Errorf("read %s: %w", table, err)
	}
	return out, true, nil
}
