package cli

import (
	"flag"
	"os"

	"aurora/internal/pkg/errors"
)

// Args returns the command line arguments after the program name.
func Args() []string {
	return os.Args[1:]
}

// FlagError wraps a flag parsing failure as a validation error. -h is not an error.
func FlagError(err error) error {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return errors.WrapWithCode(err, errors.CodeValidation, "cli.flags", "invalid arguments")
}
