package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidPageID = errors.New("no notion page id found")

var (
	hexTail  = regexp.MustCompile(`(?i)([0-9a-f]{32})$`)
	uuidTail = regexp.MustCompile(`(?i)([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

// ExtractPageID accepts a page URL or a bare id and returns the dashed
// lowercase id. Supported forms, in order of preference: 32 hex characters
// ending the path, a dashed UUID ending the path, and 32 hex characters in
// the last path segment once its dashes are removed.
func ExtractPageID(s string) (string, error) {
	path := strings.TrimSpace(s)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")

	candidate := ""
	if m := hexTail.FindStringSubmatch(path); m != nil {
		candidate = m[1]
	} else if m := uuidTail.FindStringSubmatch(path); m != nil {
		candidate = m[1]
	} else {
		last := path[strings.LastIndex(path, "/")+1:]
		if m := hexTail.FindStringSubmatch(strings.ReplaceAll(last, "-", "")); m != nil {
			candidate = m[1]
		}
	}
	if candidate == "" {
		return "", fmt.Errorf("%w in %q", ErrInvalidPageID, s)
	}

	id, err := uuid.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w in %q: %v", ErrInvalidPageID, s, err)
	}
	return id.String(), nil
}
