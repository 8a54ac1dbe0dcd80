package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/labreport/internal/common"
)

// ReportServiceName is the fully qualified gRPC service name.
const ReportServiceName = "labreport.v1.ReportService"

// RequestIDHeader carries a caller supplied request id in gRPC metadata and HTTP headers.
const RequestIDHeader = "x-request-id"

// ReportServiceServer is the gRPC surface. Messages are google.protobuf.Struct
// documents whose fields mirror the JSON of the HTTP API.
type ReportServiceServer interface {
	StartAnalysis(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHistory(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	DeleteRecord(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ExportHistory(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportServiceDesc, srv)
}

var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ReportServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartAnalysis", Handler: startAnalysisHandler},
		{MethodName: "GetHistory", Handler: getHistoryHandler},
		{MethodName: "DeleteRecord", Handler: deleteRecordHandler},
		{MethodName: "ExportHistory", Handler: exportHistoryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labreport/v1/report.proto",
}

func startAnalysisHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).StartAnalysis(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ReportServiceName + "/StartAnalysis"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).StartAnalysis(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ReportServiceName + "/GetHistory"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).GetHistory(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteRecordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).DeleteRecord(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ReportServiceName + "/DeleteRecord"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).DeleteRecord(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func exportHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).ExportHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ReportServiceName + "/ExportHistory"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReportServiceServer).ExportHistory(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer adapts ReportService to the gRPC surface.
type GRPCServer struct {
	svc    *ReportService
	logger *slog.Logger
}

var _ ReportServiceServer = (*GRPCServer)(nil)

func NewGRPCServer(svc *ReportService, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCServer{svc: svc, logger: logger}
}

func (s *GRPCServer) StartAnalysis(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in AnalyzeInput
	if err := fromStruct(req, &in); err != nil {
		return nil, common.InvalidArgumentErrorf("decode request: %v", err)
	}
	res, err := s.svc.Analyze(ctx, in)
	if err != nil {
		return nil, common.ToStatus(err, "start analysis")
	}
	return toStruct(res)
}

func (s *GRPCServer) GetHistory(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries, err := s.svc.History(ctx)
	if err != nil {
		return nil, common.ToStatus(err, "get history")
	}
	return toStruct(map[string]any{"records": entries})
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	var in struct {
		ID int64 `json:"id"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, common.InvalidArgumentErrorf("decode request: %v", err)
	}
	if err := s.svc.Delete(ctx, in.ID); err != nil {
		return nil, common.ToStatus(err, "delete record")
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) ExportHistory(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	data, err := s.svc.Export(ctx)
	if err != nil {
		return nil, common.ToStatus(err, "export history")
	}
	return wrapperspb.Bytes(data), nil
}

// UnaryRequestLogger attaches a request id to every call and logs its outcome.
func UnaryRequestLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, rid := common.EnsureRequestID(ctx)
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("grpc.call.failed", "method", info.FullMethod, "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		} else {
			logger.Info("grpc.call", "method", info.FullMethod, "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		}
		return resp, err
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalError("encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.InternalError("encode response")
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, out any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
