package common

import "regexp"

// InternalIDPattern matches the shape of a normalized internal user id:
// a lowercase hex sha256 digest.
var InternalIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
