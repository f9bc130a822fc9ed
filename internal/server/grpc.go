package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/crystalrace/crystal-server-go/internal/config"
	"github.com/crystalrace/crystal-server-go/internal/match"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct values holding the JSON shapes from codec.go.
const ServiceName = "crystal.v1.CrystalService"

// CrystalServiceServer is the server side of the crystal service.
type CrystalServiceServer interface {
	CreateMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LegalActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchMatch(*structpb.Struct, grpc.ServerStream) error
}

// crystalServer implements CrystalServiceServer on a match manager.
type crystalServer struct {
	mgr    *match.Manager
	logger *zap.Logger
}

// NewCrystalServer creates the service implementation.
func NewCrystalServer(mgr *match.Manager, logger *zap.Logger) CrystalServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &crystalServer{mgr: mgr, logger: logger}
}

// NewGRPCServer builds a gRPC server with the standard interceptor chain
// and registers the crystal service on it.
func NewGRPCServer(cfg config.GRPCConfig, mgr *match.Manager, logger *zap.Logger) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		)),
		grpc.StreamInterceptor(StreamRecoveryInterceptor(logger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	}
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConcurrentStreams)))
	}
	s := grpc.NewServer(opts...)
	RegisterCrystalService(s, NewCrystalServer(mgr, logger))
	return s
}

// ==================== Match Methods ====================

// CreateMatch seats the requested players and returns their credentials.
func (s *crystalServer) CreateMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateMatchRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	mt, creds, err := s.mgr.CreateMatch(ctx, in.specs())
	if err != nil {
		return nil, toStatus(err)
	}
	snap, err := s.mgr.Snapshot(ctx, mt.ID)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info("match created over gRPC",
		zap.String("match_id", mt.ID),
		zap.String("host", extractHostFromContext(ctx)),
	)
	return encodeStruct(CreateMatchResponse{
		MatchID:     mt.ID,
		Credentials: credentialViews(creds),
		Snapshot:    NewSnapshotView(snap),
	})
}

// SubmitAction applies one action. Engine rejections come back as status
// errors whose code follows the rejection kind.
func (s *crystalServer) SubmitAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in SubmitRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	action, err := ParseAction(in.Action)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.mgr.Submit(ctx, in.MatchID, in.PlayerID, in.Secret, action)
	if err != nil {
		return nil, toStatus(err)
	}
	if !res.Success {
		return nil, status.Errorf(codeForKind(res.Kind), "%s: %s", res.Kind, res.Message)
	}
	return encodeStruct(NewResultView(res))
}

func (s *crystalServer) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in MatchRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	snap, err := s.mgr.Snapshot(ctx, in.MatchID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(NewSnapshotView(snap))
}

func (s *crystalServer) LegalActions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in MatchRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	actions, err := s.mgr.LegalActions(in.MatchID, in.PlayerID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeStruct(LegalActionsResponse{
		MatchID:  in.MatchID,
		PlayerID: in.PlayerID,
		Actions:  actionViews(actions),
	})
}

func (s *crystalServer) ListMatches(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	summaries := s.mgr.List()
	views := make([]SummaryView, 0, len(summaries))
	for _, sum := range summaries {
		views = append(views, summaryView(sum))
	}
	return encodeStruct(map[string]any{"matches": views})
}

// WatchMatch streams an update after every applied action until the match
// ends or the client goes away.
func (s *crystalServer) WatchMatch(req *structpb.Struct, stream grpc.ServerStream) error {
	var in MatchRequest
	if err := decodeStruct(req, &in); err != nil {
		return err
	}
	updates, cancel, err := s.mgr.Subscribe(in.MatchID)
	if err != nil {
		return toStatus(err)
	}
	defer cancel()

	// The first message is the current position, so a client knows it is
	// subscribed before it starts acting.
	ctx := stream.Context()
	snap, err := s.mgr.Snapshot(ctx, in.MatchID)
	if err != nil {
		return toStatus(err)
	}
	first, err := encodeStruct(UpdateView{
		MatchID:  in.MatchID,
		State:    match.StatePlaying.String(),
		Snapshot: NewSnapshotView(snap),
	})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(first); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := encodeStruct(NewUpdateView(u))
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				s.logger.Debug("watch stream closed",
					zap.String("match_id", in.MatchID),
					zap.Error(err),
				)
				return err
			}
		}
	}
}

// ==================== Service Registration ====================

func createMatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "CreateMatch", CrystalServiceServer.CreateMatch)
}

func submitActionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "SubmitAction", CrystalServiceServer.SubmitAction)
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "GetSnapshot", CrystalServiceServer.GetSnapshot)
}

func legalActionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "LegalActions", CrystalServiceServer.LegalActions)
}

func listMatchesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, "ListMatches", CrystalServiceServer.ListMatches)
}

type unaryMethod func(CrystalServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor, name string, call unaryMethod) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	impl := srv.(CrystalServiceServer)
	if interceptor == nil {
		return call(impl, ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(impl, ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchMatchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CrystalServiceServer).WatchMatch(in, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CrystalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateMatch", Handler: createMatchHandler},
		{MethodName: "SubmitAction", Handler: submitActionHandler},
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "LegalActions", Handler: legalActionsHandler},
		{MethodName: "ListMatches", Handler: listMatchesHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchMatch", Handler: watchMatchHandler, ServerStreams: true},
	},
	Metadata: "crystal/v1/crystal.proto",
}

// RegisterCrystalService registers srv on s.
func RegisterCrystalService(s grpc.ServiceRegistrar, srv CrystalServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ==================== Client ====================

// Client calls the crystal service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	req, err := encodeStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return err
	}
	return decodeStruct(resp, out)
}

func (c *Client) CreateMatch(ctx context.Context, req CreateMatchRequest) (CreateMatchResponse, error) {
	var out CreateMatchResponse
	err := c.call(ctx, "CreateMatch", req, &out)
	return out, err
}

func (c *Client) SubmitAction(ctx context.Context, req SubmitRequest) (ResultView, error) {
	var out ResultView
	err := c.call(ctx, "SubmitAction", req, &out)
	return out, err
}

func (c *Client) GetSnapshot(ctx context.Context, matchID string) (SnapshotView, error) {
	var out SnapshotView
	err := c.call(ctx, "GetSnapshot", MatchRequest{MatchID: matchID}, &out)
	return out, err
}

func (c *Client) LegalActions(ctx context.Context, matchID, playerID string) (LegalActionsResponse, error) {
	var out LegalActionsResponse
	err := c.call(ctx, "LegalActions", MatchRequest{MatchID: matchID, PlayerID: playerID}, &out)
	return out, err
}

func (c *Client) ListMatches(ctx context.Context) ([]SummaryView, error) {
	var out struct {
		Matches []SummaryView `json:"matches"`
	}
	err := c.call(ctx, "ListMatches", struct{}{}, &out)
	return out.Matches, err
}

// UpdateStream receives the updates of one watched match.
type UpdateStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next update. It returns io.EOF once the match ends.
func (u *UpdateStream) Recv() (UpdateView, error) {
	msg := new(structpb.Struct)
	if err := u.stream.RecvMsg(msg); err != nil {
		return UpdateView{}, err
	}
	var out UpdateView
	err := decodeStruct(msg, &out)
	return out, err
}

func (c *Client) WatchMatch(ctx context.Context, matchID string) (*UpdateStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/WatchMatch")
	if err != nil {
		return nil, err
	}
	req, err := encodeStruct(MatchRequest{MatchID: matchID})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &UpdateStream{stream: stream}, nil
}

// ==================== Helper Functions ====================

func encodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func decodeStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = new(structpb.Struct)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

// Helper function to extract host from context
func extractHostFromContext(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != net.Addr(nil) {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// RejectionKind returns the engine rejection kind carried by a
// SubmitAction error, such as "NOT_YOUR_TURN", or the status code name for
// other errors.
func RejectionKind(err error) string {
	msg := status.Convert(err).Message()
	if i := strings.Index(msg, ":"); i > 0 {
		return msg[:i]
	}
	return fmt.Sprint(status.Code(err))
}
