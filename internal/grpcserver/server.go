package grpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"slitmask/internal/mask"
	"slitmask/internal/maskio"
	"slitmask/internal/service"
	"slitmask/internal/targets"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaskServer is the server side of slitmask.v1.MaskService. Requests and
// replies are free-form structs carrying the same JSON shapes as the HTTP API.
type MaskServer interface {
	Generate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Edit(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Server implements MaskServer over the mask service.
type Server struct {
	svc *service.Service
	log *slog.Logger
}

func New(svc *service.Service, log *slog.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// Register adds the service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	g := grpc.NewServer(
		grpc.MaxRecvMsgSize(16*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
	)
	s.Register(g)

	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down gRPC server...")
		g.GracefulStop()
	}()

	s.log.Info("gRPC server starting", "addr", lis.Addr().String(), "service", serviceName)
	if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

type idRequest struct {
	ID string `json:"id"`
}

type listRequest struct {
	Limit int `json:"limit"`
}

type listReply struct {
	Masks []service.Summary `json:"masks"`
}

type editRequest struct {
	ID string `json:"id"`
	service.Edit
}

type generateReply struct {
	ID   string           `json:"id"`
	Mask service.MaskView `json:"mask"`
}

func (s *Server) Generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req service.GenerateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	job, err := req.Job(s.svc.Instrument())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, _, err := s.svc.Generate(job)
	if err != nil {
		return nil, toStatus(err)
	}
	view, err := s.svc.View(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(generateReply{ID: id, Mask: view})
}

func (s *Server) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req idRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	view, err := s.svc.View(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(view)
}

func (s *Server) List(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := listRequest{Limit: 100}
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	masks, err := s.svc.List(req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(listReply{Masks: masks})
}

func (s *Server) Edit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req editRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	res, err := s.svc.Apply(req.ID, req.Edit)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

// toStatus maps service errors onto gRPC codes.
func toStatus(err error) error {
	var (
		lookup     *mask.LookupError
		format     *maskio.FormatError
		line       *targets.LineError
		validation validator.ValidationErrors
	)
	switch {
	case service.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &lookup), errors.Is(err, mask.ErrUnsaveable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &format), errors.As(err, &line), errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return nil
}
