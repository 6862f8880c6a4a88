// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GetAndValidateURLParam returns the path-unescaped chi URL parameter name.
// Org units, connector names and record ids may contain escaped slashes or
// colons, but never whitespace, and must not be empty.
func GetAndValidateURLParam(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}

	switch {
	case strings.TrimSpace(value) == "":
		return "", fmt.Errorf("%s cannot be empty", name)
	case strings.ContainsAny(value, " \t\n\r"):
		return "", fmt.Errorf("%s cannot contain whitespace", name)
	}
	return value, nil
}
