package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves a keystore passphrase once, from an environment variable
// or an interactive prompt, and caches the answer.
type Source struct {
	envVar string
	label  string
	lookup func(string) (string, bool)
	prompt func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on the terminal. label names the
// keystore in prompts and errors, e.g. "operator".
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	return &Source{
		envVar: strings.TrimSpace(envVar),
		label:  label,
		lookup: os.LookupEnv,
		prompt: promptTerminal,
	}
}

// Get returns the passphrase. Whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := s.lookup(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}
		value, err := s.prompt(s.label)
		if err != nil {
			if errors.Is(err, errNoTerminal) && s.envVar != "" {
				s.err = fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
				return
			}
			s.err = err
			return
		}
		if strings.TrimSpace(value) == "" {
			s.err = fmt.Errorf("%s passphrase cannot be empty", s.label)
			return
		}
		s.value = value
	})
	return s.value, s.err
}

var errNoTerminal = errors.New("passphrase required and no terminal available")

func promptTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	return readHidden(os.Stderr, fd, fmt.Sprintf("Enter %s passphrase: ", label))
}

func readHidden(w io.Writer, fd int, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}
