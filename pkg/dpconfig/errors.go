package dpconfig

import "fmt"

// Errorf builds a dpconfig validation error. Kept distinct from
// dperrors.Configuration so dpconfig has no dependency on the rest of this
// module's packages. Config.Validate returns these as-is; pkg/ingest and
// pkg/query do not call it and run their own checks on the configs they
// are given.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf("dpconfig: "+format, args...)
}
