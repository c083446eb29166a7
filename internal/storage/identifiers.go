package storage

import "github.com/jackc/pgx/v5"

// buildClaimedPGCQuery builds the SELECT against rawdata.<table_name> for
// the configured claimed-PGC column, quoting both identifiers so a table
// or column name with odd characters can't break out of the query.
func buildClaimedPGCQuery(tableName, pgcColumn string) string {
	table := pgx.Identifier{"rawdata", tableName}.Sanitize()
	col := pgx.Identifier{pgcColumn}.Sanitize()
	return "SELECT hyperleda_internal_id::text, " + col + " FROM " + table + " WHERE hyperleda_internal_id = ANY($1::bigint[])"
}
