package utils

import (
	"os"
	"strings"
)

// IsProd reports whether ENVIRONMENT names production.
func IsProd() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "production" || env == "prod"
}

// IsDev reports whether ENVIRONMENT names development. An unset ENVIRONMENT
// counts as development.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	return env == "development" || env == "dev" || env == ""
}
