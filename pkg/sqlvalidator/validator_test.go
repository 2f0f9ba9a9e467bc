package sqlvalidator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsSimpleSelect(t *testing.T) {
	res, err := Validate("SELECT id, name FROM users WHERE status = 'ACTIVE'", 1000)
	require.NoError(t, err)
	assert.Contains(t, res.NormalizedSQL, "LIMIT 1000")
	assert.Len(t, res.Warnings, 1)
}

func TestValidateAcceptsCTE(t *testing.T) {
	res, err := Validate("WITH active AS (SELECT id FROM users WHERE status = 'ACTIVE') SELECT * FROM active", 500)
	require.NoError(t, err)
	assert.Contains(t, res.NormalizedSQL, "LIMIT 500")
}

func TestValidateClampsOversizedLimit(t *testing.T) {
	res, err := Validate("SELECT id FROM users LIMIT 100000", 1000)
	require.NoError(t, err)
	assert.Contains(t, res.NormalizedSQL, "LIMIT 1000")
	assert.NotContains(t, res.NormalizedSQL, "100000")
}

func TestValidatePreservesLimitWithinCap(t *testing.T) {
	res, err := Validate("SELECT id FROM users LIMIT 50", 1000)
	require.NoError(t, err)
	assert.Contains(t, res.NormalizedSQL, "LIMIT 50")
	assert.Empty(t, res.Warnings)
}

func TestValidateRejectsDDLAndDML(t *testing.T) {
	cases := []string{
		"DROP TABLE users",
		"DELETE FROM users WHERE id = 1",
		"UPDATE users SET status = 'INACTIVE'",
		"INSERT INTO users (id) VALUES (1)",
		"CREATE TABLE evil (id int)",
		"ALTER TABLE users ADD COLUMN evil text",
		"TRUNCATE users",
		"GRANT ALL ON users TO public",
	}
	for _, sql := range cases {
		_, err := Validate(sql, 100)
		assert.Error(t, err, "expected rejection for: %s", sql)
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	_, err := Validate("SELECT id FROM users; DROP TABLE users", 100)
	require.Error(t, err)
}

func TestValidateRejectsCommentBasedMultiStatementPayload(t *testing.T) {
	// A decoy semicolon and DROP sit inside a line comment and are stripped;
	// the real second statement on the next line must still be caught by
	// the statement-count check that runs after comment stripping.
	sql := "SELECT id FROM users -- ; DROP TABLE users\n; DROP TABLE users"
	_, err := Validate(sql, 100)
	require.Error(t, err)
}

func TestValidateRejectsNonSelectRoot(t *testing.T) {
	_, err := Validate("EXPLAIN SELECT * FROM users", 100)
	require.Error(t, err)
}

func TestValidateRejectsAdminFunctions(t *testing.T) {
	_, err := Validate("SELECT pg_read_file('/etc/passwd')", 100)
	require.Error(t, err)
}

func TestValidateRejectsNonAllowlistedFunction(t *testing.T) {
	_, err := Validate("SELECT my_custom_udf(id) FROM users", 100)
	require.Error(t, err)
}

func TestValidateRejectsUnbalancedQuotes(t *testing.T) {
	_, err := Validate("SELECT * FROM users WHERE name = 'unterminated", 100)
	require.Error(t, err)
}

func TestValidateAllowsCommonAggregatesAndWindowFunctions(t *testing.T) {
	_, err := Validate(
		"SELECT status, COUNT(*), ROW_NUMBER() OVER (ORDER BY COUNT(*) DESC) FROM users GROUP BY status",
		100,
	)
	require.NoError(t, err)
}
