// Package validate holds the credential gate and the naming rules for tenant
// databases.
package validate

import (
	"crypto/subtle"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Neos21/db-api/dberr"
)

const (
	MaxNameLength       = 50
	MinCredentialLength = 8
	MaxCredentialLength = 20
)

// namePattern accepts lowercase kebab-case: letters and hyphens, starting and
// ending with a letter.
var namePattern = regexp.MustCompile(`^[a-z]+(?:[a-z-]*[a-z])?$`)

// IsEmpty reports whether value is blank after trimming whitespace.
func IsEmpty(value string) bool {
	return strings.TrimSpace(value) == ""
}

// Gate checks callers against the process-wide master credential.
type Gate struct {
	master string
}

func NewGate(master string) *Gate {
	return &Gate{master: master}
}

// Credential reports whether input is non-blank and equal to the master
// credential.
func (g *Gate) Credential(input string) bool {
	if IsEmpty(input) || IsEmpty(g.master) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(input), []byte(g.master)) == 1
}

// Check is Credential expressed as an error.
func (g *Gate) Check(input string) error {
	if !g.Credential(input) {
		return dberr.Validationf("Invalid Credential")
	}
	return nil
}

// DBInput validates a database name and credential pair. Rules are applied in
// order and the first violation is returned as a Validation error. Lengths
// count characters, not bytes.
func DBInput(name, credential string) error {
	switch {
	case IsEmpty(name):
		return dberr.Validationf("DB Name Is Empty")
	case IsEmpty(credential):
		return dberr.Validationf("DB Credential Is Empty")
	case utf8.RuneCountInString(name) > MaxNameLength:
		return dberr.Validationf("DB Name Is Too Long")
	case utf8.RuneCountInString(credential) < MinCredentialLength:
		return dberr.Validationf("DB Credential Is Too Short. Please Input %d Characters Or More", MinCredentialLength)
	case utf8.RuneCountInString(credential) > MaxCredentialLength:
		return dberr.Validationf("DB Credential Is Too Long. Please Input %d Characters Or Less", MaxCredentialLength)
	case !namePattern.MatchString(name):
		return dberr.Validationf("Invalid DB Name Pattern")
	}
	return nil
}

// IsObject reports whether v decoded from JSON as an object. Arrays, scalars
// and null are rejected.
func IsObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
