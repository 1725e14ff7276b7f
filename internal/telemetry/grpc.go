package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "piecefinder.telemetry.v1.Telemetry"

// Struct field names carried on the wire.
const (
	FieldPositionX  = "position_x"
	FieldPositionY  = "position_y"
	FieldYaw        = "yaw"
	FieldCertainty  = "certainty"
	FieldTimestamp  = "timestamp"
	FieldCapturedAt = "captured_at"
	FieldDefault    = "default"
)

// clientBuffer is the per-subscriber queue depth. A subscriber that falls
// further behind loses records.
const clientBuffer = 16

type telemetryServer interface {
	Latest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*telemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Latest", Handler: latestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "piecefinder/telemetry/v1/telemetry.proto",
}

func latestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(telemetryServer).Latest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Latest"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(telemetryServer).Latest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(telemetryServer).Subscribe(in, stream)
}

// GRPCSink serves published records over gRPC: Latest returns the newest
// record and Subscribe streams every record from the moment of subscription.
type GRPCSink struct {
	server *grpc.Server

	mu      sync.RWMutex
	latest  *structpb.Struct
	clients map[uint64]chan *structpb.Struct
	nextID  uint64

	stopCh  chan struct{}
	stopped atomic.Bool
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// NewGRPCSink creates the sink and its gRPC server.
func NewGRPCSink(opts ...grpc.ServerOption) *GRPCSink {
	s := &GRPCSink{
		server:  grpc.NewServer(opts...),
		clients: make(map[uint64]chan *structpb.Struct),
		stopCh:  make(chan struct{}),
	}
	s.server.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on addr and serves in the background.
func (s *GRPCSink) Start(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logs.Diagf("gRPC telemetry listening on %s", lis.Addr())
		if err := s.Serve(lis); err != nil && !s.stopped.Load() {
			logs.Opsf("gRPC server error: %v", err)
		}
	}()
	return lis.Addr(), nil
}

// Serve blocks serving on lis.
func (s *GRPCSink) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Publish implements Sink. It never blocks on slow subscribers.
func (s *GRPCSink) Publish(ctx context.Context, r Record) error {
	if s.stopped.Load() {
		return fmt.Errorf("%w: grpc sink stopped", ErrSinkUnavailable)
	}
	msg := recordToStruct(r)

	s.mu.Lock()
	s.latest = msg
	for id, ch := range s.clients {
		select {
		case ch <- msg:
		default:
			n := s.dropped.Add(1)
			logs.Tracef("subscriber %d is slow, dropped record (total %d)", id, n)
		}
	}
	s.mu.Unlock()
	return nil
}

// Latest implements the unary RPC.
func (s *GRPCSink) Latest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, status.Error(codes.NotFound, "nothing published yet")
	}
	return s.latest, nil
}

// Subscribe implements the server-streaming RPC.
func (s *GRPCSink) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	id, ch := s.addClient()
	defer s.removeClient(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case msg := <-ch:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *GRPCSink) addClient() (uint64, chan *structpb.Struct) {
	ch := make(chan *structpb.Struct, clientBuffer)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.clients[id] = ch
	n := len(s.clients)
	s.mu.Unlock()
	logs.Diagf("subscriber %d connected (total %d)", id, n)
	return id, ch
}

func (s *GRPCSink) removeClient(id uint64) {
	s.mu.Lock()
	delete(s.clients, id)
	n := len(s.clients)
	s.mu.Unlock()
	logs.Diagf("subscriber %d disconnected (remaining %d)", id, n)
}

// Subscribers returns the number of connected streams.
func (s *GRPCSink) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns how many records slow subscribers missed.
func (s *GRPCSink) Dropped() uint64 { return s.dropped.Load() }

// Close ends all streams and stops the server.
func (s *GRPCSink) Close() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	s.server.GracefulStop()
	s.wg.Wait()
	return nil
}

func recordToStruct(r Record) *structpb.Struct {
	captured := ""
	if !r.CapturedAt.IsZero() {
		captured = r.CapturedAt.UTC().Format(time.RFC3339Nano)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldPositionX:  structpb.NewNumberValue(r.X),
		FieldPositionY:  structpb.NewNumberValue(r.Y),
		FieldYaw:        structpb.NewNumberValue(r.Yaw),
		FieldCertainty:  structpb.NewNumberValue(r.Certainty),
		FieldTimestamp:  structpb.NewStringValue(r.Timestamp.UTC().Format(time.RFC3339Nano)),
		FieldCapturedAt: structpb.NewStringValue(captured),
		FieldDefault:    structpb.NewBoolValue(r.Default),
	}}
}

// RecordFromStruct decodes a record received from the service.
func RecordFromStruct(s *structpb.Struct) (Record, error) {
	f := s.GetFields()
	r := Record{
		X:         f[FieldPositionX].GetNumberValue(),
		Y:         f[FieldPositionY].GetNumberValue(),
		Yaw:       f[FieldYaw].GetNumberValue(),
		Certainty: f[FieldCertainty].GetNumberValue(),
		Default:   f[FieldDefault].GetBoolValue(),
	}
	ts, err := time.Parse(time.RFC3339Nano, f[FieldTimestamp].GetStringValue())
	if err != nil {
		return Record{}, fmt.Errorf("invalid %s: %w", FieldTimestamp, err)
	}
	r.Timestamp = ts
	if c := f[FieldCapturedAt].GetStringValue(); c != "" {
		if r.CapturedAt, err = time.Parse(time.RFC3339Nano, c); err != nil {
			return Record{}, fmt.Errorf("invalid %s: %w", FieldCapturedAt, err)
		}
	}
	return r, nil
}

// Client is a minimal client for the telemetry service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Latest fetches the newest record.
func (c *Client) Latest(ctx context.Context) (Record, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Latest", &emptypb.Empty{}, out); err != nil {
		return Record{}, err
	}
	return RecordFromStruct(out)
}

// Subscription receives streamed records.
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe opens a record stream.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/Subscribe")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next record.
func (s *Subscription) Recv() (Record, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return Record{}, err
	}
	return RecordFromStruct(msg)
}
