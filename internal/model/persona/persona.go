package persona

import (
	"errors"
	"fmt"
	"strings"
)

// ID identifies one of the built-in philosophers. The set is closed: values
// outside IDs() are never produced by this package.
type ID string

const (
	Socrates  ID = "SOCRATES"
	Plato     ID = "PLATO"
	Aristotle ID = "ARISTOTLE"
	Descartes ID = "DESCARTES"
	Leibniz   ID = "LEIBNIZ"
	Turing    ID = "TURING"
)

var ErrUnknownPersona = errors.New("unknown persona")

var ids = []ID{Socrates, Plato, Aristotle, Descartes, Leibniz, Turing}

// IDs returns every persona identifier in display order.
func IDs() []ID {
	return append([]ID(nil), ids...)
}

// Valid reports whether id belongs to the closed persona set.
func (id ID) Valid() bool {
	for _, known := range ids {
		if id == known {
			return true
		}
	}
	return false
}

func (id ID) String() string {
	return string(id)
}

// ParseID maps user supplied text such as "plato" onto the persona set.
func ParseID(raw string) (ID, error) {
	id := ID(strings.ToUpper(strings.TrimSpace(raw)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, raw)
	}
	return id, nil
}

// Persona captures the display metadata and the system instruction of a philosopher.
type Persona struct {
	ID                 ID       `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	Greeting           string   `json:"greeting" yaml:"greeting"`
	Subtext            string   `json:"subtext" yaml:"subtext"`
	Motto              string   `json:"motto,omitempty" yaml:"motto"`
	Theme              string   `json:"theme,omitempty" yaml:"theme"`
	SuggestedQuestions []string `json:"suggestedQuestions,omitempty" yaml:"suggestedQuestions"`
	Instruction        string   `json:"-" yaml:"instruction"`
}

func (p Persona) clone() Persona {
	p.SuggestedQuestions = append([]string(nil), p.SuggestedQuestions...)
	return p
}
