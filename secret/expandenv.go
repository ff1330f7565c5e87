package secret

import (
	"errors"
	"os"
	"regexp"
	"slices"
	"strings"
)

// ErrMissingEnv is matched by errors.Is for *MissingEnvError.
var ErrMissingEnv = errors.New("secret: missing environment variables")

// MissingEnvError lists the ${VAR} references that had no value.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	return ErrMissingEnv.Error() + ": " + strings.Join(e.Names, ", ")
}

// Is reports ErrMissingEnv.
func (e *MissingEnvError) Is(target error) bool { return target == ErrMissingEnv }

// LookupFunc reads one variable, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

var bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollarMark = "\x00eunsense-dollar\x00"

// ExpandEnvStrict expands $VAR and ${VAR} from the process environment.
// A ${VAR} with no value is an error; a bare $VAR expands to "". $$ is a
// literal dollar sign.
func ExpandEnvStrict(s string) (string, error) {
	return Expand(s, os.LookupEnv)
}

// Expand is ExpandEnvStrict over lookup.
func Expand(s string, lookup LookupFunc) (string, error) {
	s = strings.ReplaceAll(s, "$$", dollarMark)

	var missing []string
	for _, m := range bracedVar.FindAllStringSubmatch(s, -1) {
		if _, ok := lookup(m[1]); !ok && !slices.Contains(missing, m[1]) {
			missing = append(missing, m[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", &MissingEnvError{Names: missing}
	}

	s = os.Expand(s, func(name string) string {
		v, _ := lookup(name)
		return v
	})
	return strings.ReplaceAll(s, dollarMark, "$"), nil
}
