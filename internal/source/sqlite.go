package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/geal-ai/gridshift"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReadSQLite reads nodes from a table shaped like the OSTN15.db distribution:
//
//	key INTEGER (Point_ID), eastings REAL, northings REAL, height REAL
//
// where eastings, northings and height are the shift components.
func ReadSQLite(ctx context.Context, path, table string, grid gridshift.GridDefinition) ([]gridshift.Node, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("sqlite: invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT key, eastings, northings, height FROM %s ORDER BY key`, table))
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %s: %w", table, err)
	}
	defer rows.Close()

	var nodes []gridshift.Node
	for rows.Next() {
		var id int64
		var v gridshift.ShiftVector
		if err := rows.Scan(&id, &v.DX, &v.DY, &v.DZ); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		if id <= 0 || id > 1<<32-1 {
			return nil, fmt.Errorf("sqlite: key %d out of range", id)
		}
		k, ok := grid.KeyOf(uint32(id))
		if !ok {
			return nil, fmt.Errorf("sqlite: key %d outside %dx%d grid", id, grid.Cols, grid.Rows)
		}
		nodes = append(nodes, gridshift.Node{Key: k, Shift: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return nodes, nil
}
