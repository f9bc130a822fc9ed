package server

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/match"
)

// ChainUnaryInterceptors runs interceptors in order, the first one
// outermost.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chained := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			next, ic := chained, interceptors[i]
			chained = func(ctx context.Context, req any) (any, error) {
				return ic(ctx, req, info, next)
			}
		}
		return chained(ctx, req)
	}
}

// RecoveryInterceptor turns handler panics into codes.Internal.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Stringer("code", status.Code(err)),
			zap.String("peer", extractHostFromContext(ctx)),
		}
		if err != nil {
			logger.Warn("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}

// StreamRecoveryInterceptor is RecoveryInterceptor for streaming calls.
func StreamRecoveryInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in gRPC stream",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

// codeForKind maps an engine rejection to a gRPC status code.
func codeForKind(k game.ErrorKind) codes.Code {
	switch k {
	case game.KindNone:
		return codes.OK
	case game.KindNotYourTurn, game.KindWrongPhase, game.KindGameNotPlaying:
		return codes.FailedPrecondition
	case game.KindNotOwned:
		return codes.PermissionDenied
	case game.KindUnknownToken:
		return codes.NotFound
	case game.KindIllegalDestination, game.KindIllegalTarget, game.KindInvalidTier,
		game.KindReserveExhausted, game.KindTokenUnavailable, game.KindUnknownAction:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

// toStatus converts manager and engine errors into gRPC status errors.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, match.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, match.ErrActorMismatch):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, match.ErrInvalidPlayers):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, match.ErrTooManyMatches):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, match.ErrMatchNotRunning):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if kind := game.KindOf(err); kind != game.KindNone {
		return status.Error(codeForKind(kind), err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
