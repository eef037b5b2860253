package console

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/benkokes/elite-EI65-robot-controller/errors"
)

// Credentials are the console login.
type Credentials struct {
	Username string
	Password string
}

// LoadCredentials reads a two-line file: username, then password. Surrounding
// whitespace on each line is ignored and extra lines are not read.
func LoadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, errors.WrapFatal(
			fmt.Errorf("%w: credentials file %q not found: %v", errors.ErrCredentials, path, err),
			"Credentials", "LoadCredentials", "open credentials file")
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for len(lines) < 2 && scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Credentials{}, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrCredentials, err),
			"Credentials", "LoadCredentials", "read credentials file")
	}
	if len(lines) < 2 {
		return Credentials{}, errors.WrapFatal(
			fmt.Errorf("%w: credentials file is incomplete", errors.ErrCredentials),
			"Credentials", "LoadCredentials", "parse credentials file")
	}
	return Credentials{Username: lines[0], Password: lines[1]}, nil
}
