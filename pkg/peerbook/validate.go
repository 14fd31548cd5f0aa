package peerbook

import (
	"errors"
	"fmt"
	"unicode"
)

// MaxAliasLength bounds peer aliases. Aliases end up in file names,
// log lines, and YAML exports; keep them short and plain.
const MaxAliasLength = 64

// ErrInvalidAlias is returned when an alias fails validation.
var ErrInvalidAlias = errors.New("invalid alias")

// ValidateAlias checks a peer alias. Aliases must:
//   - Contain only letters, digits, hyphens, and underscores
//   - Not exceed MaxAliasLength
//
// The empty alias is valid; it clears the name.
func ValidateAlias(alias string) error {
	if len(alias) > MaxAliasLength {
		return fmt.Errorf("%w: %d characters exceeds maximum of %d",
			ErrInvalidAlias, len(alias), MaxAliasLength)
	}
	for i, r := range alias {
		if !isAliasChar(r) {
			return fmt.Errorf("%w: character %q at position %d (only letters, digits, hyphen, and underscore allowed)",
				ErrInvalidAlias, r, i)
		}
	}
	return nil
}

func isAliasChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}
