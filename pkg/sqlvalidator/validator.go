// Package sqlvalidator implements the SQL Safety Validator: static checks
// run on a user-supplied SQL string before the SQL Schema View's executor
// ever sees it. No SQL parser exists anywhere in the example pack this
// module was grounded on, so this validator is deliberately a conservative
// tokenizer plus an explicit allowlist rather than a full grammar — see
// DESIGN.md for why the standard library carries this concern.
package sqlvalidator

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is the outcome of a successful validation.
type Result struct {
	NormalizedSQL string
	Warnings      []string
}

// ValidationError carries the stable error taxonomy value surfaced to the
// ReAct loop as a sql_rejected tool failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func reject(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// blacklistedKeywords covers DDL, DML, and administrative statements that
// must never reach the read-only executor.
var blacklistedKeywords = []string{
	"insert", "update", "delete", "merge", "upsert",
	"create", "drop", "alter", "truncate", "rename",
	"grant", "revoke",
	"pragma", "vacuum", "attach", "detach", "reindex", "analyze",
	"exec", "execute", "call", "copy", "do",
	"listen", "notify", "unlisten",
	"begin", "commit", "rollback", "savepoint",
}

// blacklistedFunctions covers functions that read or write outside the
// database (files, network, extensions) or leak environment state.
var blacklistedFunctions = map[string]bool{
	"pg_read_file": true, "pg_read_binary_file": true, "pg_ls_dir": true,
	"pg_stat_file": true, "lo_import": true, "lo_export": true,
	"dblink": true, "dblink_connect": true,
	"load_extension": true, "pg_sleep": true,
	"current_setting": true, "set_config": true,
	"pg_terminate_backend": true, "pg_cancel_backend": true,
}

// allowedFunctions is the explicit allowlist; anything else is rejected.
var allowedFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"coalesce": true, "nullif": true, "greatest": true, "least": true,
	"lower": true, "upper": true, "trim": true, "ltrim": true, "rtrim": true,
	"substr": true, "substring": true, "length": true, "concat": true,
	"replace": true, "split_part": true, "left": true, "right": true,
	"cast": true, "extract": true, "date_trunc": true, "date_part": true,
	"now": true, "current_date": true, "current_timestamp": true,
	"age": true, "to_char": true, "to_date": true, "to_timestamp": true,
	"round": true, "ceil": true, "floor": true, "abs": true, "power": true,
	"row_number": true, "rank": true, "dense_rank": true, "percent_rank": true,
	"lag": true, "lead": true, "first_value": true, "last_value": true,
	"array_agg": true, "string_agg": true, "jsonb_agg": true, "json_agg": true,
	"distinct": true, "exists": true, "in": true, "date": true,
}

// nonFunctionKeywords are SQL keywords that can legitimately sit directly
// in front of a "(" without that "(" opening a function call's argument
// list: a CTE body (`AS (SELECT ...)`), a window clause
// (`OVER (ORDER BY ...)`), a parenthesized subquery or boolean expression,
// and so on. funcCallPattern has no grammar, so these must be skipped by
// name rather than rejected as unknown "functions".
var nonFunctionKeywords = map[string]bool{
	"as": true, "over": true, "and": true, "or": true, "not": true,
	"when": true, "case": true, "where": true, "on": true, "having": true,
	"filter": true, "from": true, "into": true, "values": true, "then": true,
	"else": true, "between": true, "like": true, "is": true, "all": true,
	"any": true, "some": true, "union": true, "except": true, "intersect": true,
	"with": true, "window": true, "partition": true, "order": true,
	"group": true, "by": true, "default": true, "end": true, "select": true,
}

var funcCallPattern = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*\(`)
var limitPattern = regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`)

// Validate runs the full static-check pipeline and, on success, returns the
// normalized SQL with a row limit injected or clamped to rowCap.
func Validate(sql string, rowCap int) (*Result, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, reject("empty SQL statement")
	}

	stripped, err := stripCommentsAndCheckQuotes(sql)
	if err != nil {
		return nil, err
	}

	if err := checkSingleStatement(stripped); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(stripped)
	trimmed = strings.TrimSuffix(trimmed, ";")

	if err := checkSelectRoot(trimmed); err != nil {
		return nil, err
	}

	if err := checkBlacklistedKeywords(trimmed); err != nil {
		return nil, err
	}

	if err := checkFunctionAllowlist(trimmed); err != nil {
		return nil, err
	}

	normalized, warnings := enforceRowLimit(trimmed, rowCap)

	return &Result{NormalizedSQL: normalized, Warnings: warnings}, nil
}

// stripCommentsAndCheckQuotes removes -- line comments and /* */ block
// comments while tracking string-literal state, so a comment opener inside
// a quoted literal is not treated as a real comment, and a comment used to
// hide a second statement is caught rather than silently swallowed.
func stripCommentsAndCheckQuotes(sql string) (string, error) {
	var out strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	runes := []rune(sql)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inSingleQuote {
			out.WriteRune(r)
			if r == '\'' {
				if i+1 < len(runes) && runes[i+1] == '\'' {
					out.WriteRune(runes[i+1])
					i++
					continue
				}
				inSingleQuote = false
			}
			continue
		}
		if inDoubleQuote {
			out.WriteRune(r)
			if r == '"' {
				inDoubleQuote = false
			}
			continue
		}

		switch {
		case r == '\'':
			inSingleQuote = true
			out.WriteRune(r)
		case r == '"':
			inDoubleQuote = true
			out.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			// Line comment: everything after it is dropped, replaced with a
			// space so an adjacent statement separator can't hide inside it.
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			out.WriteRune(' ')
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			closed := false
			for i+1 < len(runes) {
				if runes[i] == '*' && runes[i+1] == '/' {
					i++
					closed = true
					break
				}
				i++
			}
			if !closed {
				return "", reject("unterminated block comment")
			}
			out.WriteRune(' ')
		default:
			out.WriteRune(r)
		}
	}

	if inSingleQuote || inDoubleQuote {
		return "", reject("unbalanced quotes")
	}

	return out.String(), nil
}

// checkSingleStatement rejects any ';' outside the final, optional
// trailing terminator.
func checkSingleStatement(sql string) error {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(trimmed, ";") {
		return reject("multiple statements are not allowed")
	}
	return nil
}

var selectRootPattern = regexp.MustCompile(`(?is)^\s*(with\s+.+?\)\s*)?select\b`)

func checkSelectRoot(sql string) error {
	if !selectRootPattern.MatchString(sql) {
		return reject("statement root must be SELECT (optionally preceded by a CTE)")
	}
	return nil
}

func checkBlacklistedKeywords(sql string) error {
	lower := strings.ToLower(sql)
	for _, kw := range blacklistedKeywords {
		if matchesWord(lower, kw) {
			return reject("statement contains disallowed keyword %q", kw)
		}
	}
	return nil
}

func checkFunctionAllowlist(sql string) error {
	for _, match := range funcCallPattern.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(match[1])
		if nonFunctionKeywords[name] {
			continue
		}
		if blacklistedFunctions[name] {
			return reject("function %q is not permitted", name)
		}
		if !allowedFunctions[name] {
			return reject("function %q is not on the allowlist", name)
		}
	}
	return nil
}

func enforceRowLimit(sql string, rowCap int) (string, []string) {
	var warnings []string

	if m := limitPattern.FindStringSubmatch(sql); m != nil {
		var requested int
		_, _ = fmt.Sscanf(m[1], "%d", &requested)
		if requested > rowCap {
			sql = limitPattern.ReplaceAllString(sql, fmt.Sprintf("LIMIT %d", rowCap))
			warnings = append(warnings, fmt.Sprintf("requested limit %d exceeded sql_row_cap %d; clamped", requested, rowCap))
		}
		return sql, warnings
	}

	warnings = append(warnings, fmt.Sprintf("no row limit specified; injected LIMIT %d", rowCap))
	return fmt.Sprintf("%s LIMIT %d", sql, rowCap), warnings
}

func matchesWord(haystack, word string) bool {
	pattern := `\b` + regexp.QuoteMeta(word) + `\b`
	matched, _ := regexp.MatchString(pattern, haystack)
	return matched
}
