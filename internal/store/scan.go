package store

import (
	"database/sql"

	"github.com/weft-api/weft/internal/resource"
)

// scanRowWithColumns scans a single row with known column order
func scanRowWithColumns(row *sql.Row, columns []string) (resource.Record, error) {
	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := row.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	record := make(resource.Record, len(columns))
	for i, col := range columns {
		record[col] = normalize(values[i])
	}
	return record, nil
}

// scanRows scans multiple rows into records keyed by the result columns
func scanRows(rows *sql.Rows) ([]resource.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []resource.Record
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(resource.Record, len(columns))
		for i, col := range columns {
			record[col] = normalize(values[i])
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// normalize converts driver byte slices to strings. Both supported drivers
// return text and uuid columns as []byte depending on configuration; records
// always carry them as strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
