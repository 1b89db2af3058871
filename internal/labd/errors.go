package labd

import (
	"errors"
	"net/http"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/lab"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/synth"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errBadRequest marks malformed request bodies and query parameters.
var errBadRequest = errors.New("bad request")

func isInvalidInput(err error) bool {
	return errors.Is(err, errBadRequest) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrNonContiguous) ||
		errors.Is(err, synth.ErrOutOfRange) ||
		errors.Is(err, synth.ErrInvalidSampleCount) ||
		errors.Is(err, synth.ErrInvalidEpoch) ||
		errors.Is(err, synth.ErrUnknownMethod)
}

func isConflict(err error) bool {
	return errors.Is(err, lab.ErrInvalidTransition) ||
		errors.Is(err, store.ErrStatusConflict) ||
		errors.Is(err, synth.ErrNotCompleted)
}

// httpStatus maps domain errors onto HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists), isConflict(err):
		return http.StatusConflict
	case isInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// grpcError converts a domain error into a gRPC status error.
func grpcError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case isConflict(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case isInvalidInput(err):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
