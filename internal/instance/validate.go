package instance

import (
	"fmt"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateID checks that id is usable as a directory name and URL segment.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid instance id %q: must match ^[a-z0-9_-]{1,64}$", id)
	}
	return nil
}
