package vm

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxIdentifierLen bounds identifiers so they fit in one field element when committed.
const maxIdentifierLen = 31

var identifierRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ErrInvalidIdentifier is returned for malformed identifiers and program ids.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Identifier names a program, a network suffix or a function.
type Identifier string

// ParseIdentifier validates s.
func ParseIdentifier(s string) (Identifier, error) {
	if len(s) == 0 || len(s) > maxIdentifierLen {
		return "", errors.Wrapf(ErrInvalidIdentifier, "%q must be 1 to %d characters", s, maxIdentifierLen)
	}
	if !identifierRe.MatchString(s) {
		return "", errors.Wrapf(ErrInvalidIdentifier, "%q", s)
	}
	return Identifier(s), nil
}

// ProgramID is "<name>.<network>", e.g. credits.aleo.
type ProgramID struct {
	Name    Identifier
	Network Identifier
}

// ParseProgramID parses "<name>.<network>".
func ParseProgramID(s string) (ProgramID, error) {
	name, network, ok := strings.Cut(s, ".")
	if !ok {
		return ProgramID{}, errors.Wrapf(ErrInvalidIdentifier, "program id %q has no network suffix", s)
	}
	n, err := ParseIdentifier(name)
	if err != nil {
		return ProgramID{}, errors.Wrapf(err, "program id %q", s)
	}
	net, err := ParseIdentifier(network)
	if err != nil {
		return ProgramID{}, errors.Wrapf(err, "program id %q", s)
	}
	return ProgramID{Name: n, Network: net}, nil
}

// MustParseProgramID is ParseProgramID for constants.
func MustParseProgramID(s string) ProgramID {
	id, err := ParseProgramID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (p ProgramID) String() string {
	return string(p.Name) + "." + string(p.Network)
}
