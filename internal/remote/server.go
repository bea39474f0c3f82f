package remote

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
	"github.com/danielpatrickdp/adaptive-allocation/internal/control"
	"github.com/danielpatrickdp/adaptive-allocation/internal/state"
)

// #region server

// Server serves a store and a source over gRPC.
type Server struct {
	store  control.AllocationStore
	source control.ObservationSource
	logger *zap.Logger
}

// NewServer wraps a store and a source. A nil logger disables logging.
func NewServer(store control.AllocationStore, source control.ObservationSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, source: source, logger: logger}
}

func (s *Server) ReadWeights(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req readWeightsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	w, err := s.store.ReadWeights(ctx, req.ExperimentID)
	if err != nil {
		return nil, s.toStatus("ReadWeights", err)
	}
	return toStruct(readWeightsResponse{Weights: w})
}

func (s *Server) WriteWeights(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req writeWeightsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.store.WriteWeights(ctx, req.ExperimentID, req.Weights, req.Explanation); err != nil {
		return nil, s.toStatus("WriteWeights", err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) ReadObservations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req readObservationsRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	obs, err := s.source.ReadObservations(ctx, req.ExperimentID, req.WindowStart, req.WindowEnd)
	if err != nil {
		return nil, s.toStatus("ReadObservations", err)
	}
	return toStruct(readObservationsResponse{Observations: obs})
}

func (s *Server) toStatus(method string, err error) error {
	var verr *allocation.ValidationError
	switch {
	case errors.Is(err, state.ErrNoActiveWeights):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

// #endregion server
