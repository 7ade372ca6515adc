package api

// This file contains the gRPC service definitions.
// In a full build these would be generated from proto/jvpn/v1/admin.proto.
// For now we define them manually to avoid requiring protoc.
// A JSON codec (codec.go) is registered so plain Go structs work as messages.

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jarvisvpn/jvpnd/internal/registry"
)

// ── Request / Response types ────────────────────────────────────────────────

type Empty struct{}

type StatusResponse struct {
	Version string              `json:"version"`
	Servers []registry.Snapshot `json:"servers"`
}

type CreateKeyRequest struct {
	UserID            int64  `json:"user_id"`
	DeviceID          int    `json:"device_id"`
	Name              string `json:"name,omitempty"`
	PreferredServerID string `json:"preferred_server_id,omitempty"`
	ExpiresAt         int64  `json:"expires_at,omitempty"` // unix seconds, 0 = permanent
}

type CreateKeyResponse struct {
	UUID            string `json:"uuid"`
	ServerID        string `json:"server_id"`
	URL             string `json:"url"`
	SubscriptionURL string `json:"subscription_url"`
}

type RevokeKeyRequest struct {
	UserID   int64  `json:"user_id"`
	DeviceID int    `json:"device_id"`
	ServerID string `json:"server_id"`
}

type GetStatsRequest struct {
	UserID   int64  `json:"user_id"`
	DeviceID int    `json:"device_id"`
	ServerID string `json:"server_id"`
}

type GetStatsResponse struct {
	Identifier    string `json:"identifier"`
	UploadBytes   int64  `json:"upload_bytes"`
	DownloadBytes int64  `json:"download_bytes"`
	TotalBytes    int64  `json:"total_bytes"`
}

type TokenRequest struct {
	UserID int64 `json:"user_id"`
}

type TokenResponse struct {
	Token           string `json:"token"`
	SubscriptionURL string `json:"subscription_url"`
}

// ── Service interface ───────────────────────────────────────────────────────

type VPNAdminServer interface {
	GetStatus(ctx context.Context, req *Empty) (*StatusResponse, error)
	CreateKey(ctx context.Context, req *CreateKeyRequest) (*CreateKeyResponse, error)
	RevokeKey(ctx context.Context, req *RevokeKeyRequest) (*Empty, error)
	GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error)
	GetToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
}

// ── Registration ────────────────────────────────────────────────────────────

func RegisterVPNAdminServer(s *grpc.Server, srv VPNAdminServer) {
	methods := []grpc.MethodDesc{
		unaryMethod("GetStatus", func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(Empty)
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(VPNAdminServer).GetStatus(ctx, req)
		}),
		unaryMethod("CreateKey", func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(CreateKeyRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(VPNAdminServer).CreateKey(ctx, req)
		}),
		unaryMethod("RevokeKey", func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(RevokeKeyRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(VPNAdminServer).RevokeKey(ctx, req)
		}),
		unaryMethod("GetStats", func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(GetStatsRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(VPNAdminServer).GetStats(ctx, req)
		}),
		unaryMethod("GetToken", func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error) {
			req := new(TokenRequest)
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(VPNAdminServer).GetToken(ctx, req)
		}),
	}

	sd := grpc.ServiceDesc{
		ServiceName: "jvpn.v1.VPNAdmin",
		HandlerType: (*VPNAdminServer)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
	}
	s.RegisterService(&sd, srv)
}

// unaryMethod builds a grpc.MethodDesc with interceptor support.
func unaryMethod(name string, fn func(srv interface{}, ctx context.Context, dec func(interface{}) error) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			if interceptor == nil {
				return fn(srv, ctx, dec)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/jvpn.v1.VPNAdmin/" + name}
			return interceptor(ctx, nil, info, func(ctx context.Context, _ interface{}) (interface{}, error) {
				return fn(srv, ctx, dec)
			})
		},
	}
}

// ── Unimplemented base ──────────────────────────────────────────────────────

type UnimplementedVPNAdminServer struct{}

func (UnimplementedVPNAdminServer) GetStatus(context.Context, *Empty) (*StatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "not implemented")
}
func (UnimplementedVPNAdminServer) CreateKey(context.Context, *CreateKeyRequest) (*CreateKeyResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "not implemented")
}
func (UnimplementedVPNAdminServer) RevokeKey(context.Context, *RevokeKeyRequest) (*Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "not implemented")
}
func (UnimplementedVPNAdminServer) GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "not implemented")
}
func (UnimplementedVPNAdminServer) GetToken(context.Context, *TokenRequest) (*TokenResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "not implemented")
}
