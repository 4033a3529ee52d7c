package transform

import "github.com/pkg/errors"

// ErrUnknownStrategy is wrapped by Config.Validate when a config carries a
// conflict-resolution value the transformer doesn't recognize.
var ErrUnknownStrategy = errors.New("unknown conflict resolution strategy")

func errUnknownStrategy(field, value string) error {
	return errors.Wrapf(ErrUnknownStrategy, "%s=%q", field, value)
}
