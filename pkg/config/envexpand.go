package config

import "os"

// ExpandEnv expands environment variables in YAML content using the
// standard library's shell-style substitution.
//
//   - ${OKTA_API_KEY} -> value of OKTA_API_KEY
//   - $OKTA_API_KEY -> value of OKTA_API_KEY
//
// Missing variables expand to the empty string; Validate() catches any
// required field that ends up empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
