package labd

import (
	"context"
	"encoding/json"
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/lab"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// LabServiceName is the fully qualified gRPC service name.
const LabServiceName = "medvision.v1.LabService"

// LabServiceServer is the server API of LabService. Requests and responses are
// google.protobuf.Struct documents carrying the same JSON shapes as the HTTP API.
type LabServiceServer interface {
	StartExperiment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PauseExperiment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeExperiment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StepExperiment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetExperimentMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEmbeddings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSlice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompareEvaluations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDashboardStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type labCall func(LabServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call labCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LabServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LabServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LabServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LabServiceDesc describes LabService for grpc.Server.RegisterService.
var LabServiceDesc = grpc.ServiceDesc{
	ServiceName: LabServiceName,
	HandlerType: (*LabServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("StartExperiment", LabServiceServer.StartExperiment),
		unaryHandler("PauseExperiment", LabServiceServer.PauseExperiment),
		unaryHandler("ResumeExperiment", LabServiceServer.ResumeExperiment),
		unaryHandler("StepExperiment", LabServiceServer.StepExperiment),
		unaryHandler("GetExperimentMetrics", LabServiceServer.GetExperimentMetrics),
		unaryHandler("GetEmbeddings", LabServiceServer.GetEmbeddings),
		unaryHandler("GetSlice", LabServiceServer.GetSlice),
		unaryHandler("CompareEvaluations", LabServiceServer.CompareEvaluations),
		unaryHandler("GetDashboardStats", LabServiceServer.GetDashboardStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medvision/v1/lab.proto",
}

// RegisterLabServiceServer registers srv on s.
func RegisterLabServiceServer(s grpc.ServiceRegistrar, srv LabServiceServer) {
	s.RegisterService(&LabServiceDesc, srv)
}

// LabGRPCServer implements LabServiceServer on top of a lab.Lab.
type LabGRPCServer struct {
	lab *lab.Lab
}

func NewLabGRPCServer(l *lab.Lab) *LabGRPCServer {
	return &LabGRPCServer{lab: l}
}

var _ LabServiceServer = (*LabGRPCServer)(nil)

// StartExperiment runs a pending experiment. {"experiment_id": id, "async": bool}
func (s *LabGRPCServer) StartExperiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "experiment_id")
	if err != nil {
		return nil, err
	}
	run := s.lab.Start
	if boolField(req, "async") {
		run = s.lab.StartAsync
	}
	exp, err := run(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("experiment started (gRPC)", "experiment_id", id, "status", exp.Status)
	return toStruct(map[string]any{"experiment": exp})
}

func (s *LabGRPCServer) PauseExperiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.experimentOp(ctx, req, s.lab.Pause)
}

// ResumeExperiment continues a paused experiment. {"experiment_id": id, "async": bool}
func (s *LabGRPCServer) ResumeExperiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	run := s.lab.Resume
	if boolField(req, "async") {
		run = s.lab.ResumeAsync
	}
	return s.experimentOp(ctx, req, run)
}

func (s *LabGRPCServer) StepExperiment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.experimentOp(ctx, req, s.lab.Step)
}

func (s *LabGRPCServer) experimentOp(ctx context.Context, req *structpb.Struct, op func(context.Context, string) (*models.Experiment, error)) (*structpb.Struct, error) {
	id, err := requireString(req, "experiment_id")
	if err != nil {
		return nil, err
	}
	exp, err := op(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"experiment": exp})
}

func (s *LabGRPCServer) GetExperimentMetrics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "experiment_id")
	if err != nil {
		return nil, err
	}
	m, err := s.lab.Metrics(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(m)
}

// GetEmbeddings returns {"embeddings": [...]}. {"num_samples": n, "seed": s}
func (s *LabGRPCServer) GetEmbeddings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n, err := intField(req, "num_samples", defaultEmbeddingSamples)
	if err != nil {
		return nil, err
	}
	seed, err := intField(req, "seed", 0)
	if err != nil {
		return nil, err
	}
	pts, err := s.lab.Embeddings(n, int64(seed))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"embeddings": pts})
}

// GetSlice returns one slice sample. {"slice_index": i, "total_slices": n}
func (s *LabGRPCServer) GetSlice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	index, err := intField(req, "slice_index", 0)
	if err != nil {
		return nil, err
	}
	total, err := intField(req, "total_slices", defaultTotalSlices)
	if err != nil {
		return nil, err
	}
	sample, err := s.lab.Slice(index, total)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(sample)
}

func (s *LabGRPCServer) CompareEvaluations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	cmp, err := s.lab.CompareEvaluations(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(cmp)
}

func (s *LabGRPCServer) GetDashboardStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, err := s.lab.DashboardStats(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(stats)
}

func requireString(req *structpb.Struct, key string) (string, error) {
	v := req.GetFields()[key].GetStringValue()
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	return v, nil
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

// intField reads an integral number field, returning def when the field is absent.
func intField(req *structpb.Struct, key string, def int) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return def, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
