package utils

import (
	"fmt"
	"strings"
)

// ValidatePath checks a slash-separated hierarchical path such as
// "dir/sub/file.txt". Leading and trailing slashes are ignored. Empty, "." and
// ".." segments are rejected since the service would resolve them against the
// wrong directory.
func ValidatePath(p string) error {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return fmt.Errorf("path cannot be empty")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		switch segment {
		case "":
			return fmt.Errorf("path %q contains an empty segment", p)
		case ".", "..":
			return fmt.Errorf("path %q contains a relative segment %q", p, segment)
		}
	}
	return nil
}
