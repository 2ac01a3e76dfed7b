package scope

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultOutBufferSize = 10

	serviceName     = "hamshack.scope.Scope"
	getStatusMethod = "/" + serviceName + "/GetStatus"
	getFramesMethod = "/" + serviceName + "/GetFrames"
)

type scopeService interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetFrames(*emptypb.Empty, grpc.ServerStream) error
}

var scopeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*scopeService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    getStatusHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetFrames",
			Handler:       getFramesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "scope.proto",
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(scopeService).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: getStatusMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(scopeService).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getFramesHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(scopeService).GetFrames(in, stream)
}

type grpcServer struct {
	address *net.TCPAddr

	lock     *sync.Mutex
	server   *grpc.Server
	listener net.Listener
	status   *structpb.Struct

	outBufferSize int
	in            chan *structpb.Struct
	register      chan chan *structpb.Struct
	out           []chan *structpb.Struct
	shutdown      chan struct{}
}

func newGRPCServer(address string, outBufferSize int) (*grpcServer, error) {
	result := &grpcServer{
		lock:          &sync.Mutex{},
		outBufferSize: outBufferSize,
		in:            make(chan *structpb.Struct),
		register:      make(chan chan *structpb.Struct),
		shutdown:      make(chan struct{}),
	}

	localAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve address %s: %w", address, err)
	}
	result.address = localAddress

	return result, nil
}

func (s *grpcServer) run() {
	for {
		select {
		case <-s.shutdown:
			for _, out := range s.out {
				close(out)
			}
			s.out = nil
			return
		case out := <-s.register:
			s.out = append(s.out, out)
		case frame := <-s.in:
			s.sendFrameToStreams(frame)
		}
	}
}

// sendFrameToStreams closes and drops every stream that cannot take the frame immediately.
func (s *grpcServer) sendFrameToStreams(frame *structpb.Struct) {
	kept := s.out[:0]
	for _, out := range s.out {
		select {
		case out <- frame:
			kept = append(kept, out)
		default:
			close(out)
		}
	}
	clear(s.out[len(kept):])
	s.out = kept
}

func (s *grpcServer) getFrameStream() chan *structpb.Struct {
	result := make(chan *structpb.Struct, s.outBufferSize)
	select {
	case s.register <- result:
	case <-s.shutdown:
		close(result)
	}
	return result
}

func (s *grpcServer) listen() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener != nil {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address.String())
	if err != nil {
		return fmt.Errorf("cannot listen on address %s: %w", s.address, err)
	}
	s.listener = listener
	s.server = grpc.NewServer()
	s.server.RegisterService(&scopeServiceDesc, s)

	return nil
}

// serve blocks until the server is stopped. A server that was stopped before it started serving
// returns immediately and closes the listener.
func (s *grpcServer) serve() error {
	go s.run()
	defer close(s.shutdown)

	s.lock.Lock()
	server := s.server
	listener := s.listener
	s.lock.Unlock()
	if server == nil {
		return fmt.Errorf("server not listening")
	}

	err := server.Serve(listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (s *grpcServer) Stop() {
	s.lock.Lock()
	server := s.server
	s.lock.Unlock()

	if server == nil {
		return
	}
	server.Stop()
}

func (s *grpcServer) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *grpcServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status == nil {
		return nil, status.Error(codes.Unavailable, "no status available yet")
	}
	return s.status, nil
}

func (s *grpcServer) GetFrames(_ *emptypb.Empty, stream grpc.ServerStream) error {
	frames := s.getFrameStream()
	for {
		select {
		case frame, open := <-frames:
			if !open {
				return nil
			}
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *grpcServer) SendFrame(frame *structpb.Struct) {
	if frameKind(frame) == StatusFrameKind {
		s.lock.Lock()
		s.status = frame
		s.lock.Unlock()
	}

	select {
	case s.in <- frame:
	case <-s.shutdown:
	}
}
