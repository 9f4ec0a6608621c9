package dpgrpc

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/osprey-dcs/dp-client-go/pkg/dperrors"
)

// TranslateError wraps a gRPC transport failure into this module's error
// taxonomy, grounded on the teacher's ErrorClassifier pattern
// (pkg/storage/errors.go in the teacher repo): a context cancellation
// becomes KindInterrupted, a deadline becomes KindTimeout, anything else
// becomes KindTransport carrying the original status.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return dperrors.Transport(err)
	}
	switch st.Code() {
	case codes.Canceled:
		return dperrors.Interrupted(err)
	case codes.DeadlineExceeded:
		return dperrors.Timeout(st.Message())
	default:
		return dperrors.Transport(err)
	}
}
