package api

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jarvisvpn/jvpnd/internal/keygen"
	"github.com/jarvisvpn/jvpnd/internal/registry"
	"github.com/jarvisvpn/jvpnd/internal/xraymgr"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type handler struct {
	UnimplementedVPNAdminServer
	reg    *registry.Registry
	mgr    *xraymgr.Manager
	tokens *keygen.TokenSigner
	domain string
}

func (h *handler) GetStatus(ctx context.Context, req *Empty) (*StatusResponse, error) {
	servers := h.reg.All()
	snaps := make([]registry.Snapshot, 0, len(servers))
	for _, s := range servers {
		snaps = append(snaps, s.Snapshot())
	}
	return &StatusResponse{Version: Version, Servers: snaps}, nil
}

func (h *handler) CreateKey(ctx context.Context, req *CreateKeyRequest) (*CreateKeyResponse, error) {
	if req.UserID <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "user_id is required")
	}
	var expiresAt *time.Time
	if req.ExpiresAt > 0 {
		t := time.Unix(req.ExpiresAt, 0)
		expiresAt = &t
	}
	key, err := h.mgr.CreateKeyForUser(ctx, req.UserID, req.DeviceID, expiresAt, req.PreferredServerID)
	if err != nil {
		if errors.Is(err, xraymgr.ErrNoServerAvailable) {
			return nil, status.Errorf(codes.Unavailable, "%v", err)
		}
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	if req.Name != "" {
		key.Name = req.Name
	}
	return &CreateKeyResponse{
		UUID:            key.UUID,
		ServerID:        key.Server.ServerID,
		URL:             key.URL(),
		SubscriptionURL: h.tokens.SubscriptionURL(req.UserID, h.domain),
	}, nil
}

func (h *handler) RevokeKey(ctx context.Context, req *RevokeKeyRequest) (*Empty, error) {
	if err := h.mgr.RevokeKey(ctx, req.UserID, req.DeviceID, req.ServerID); err != nil {
		if errors.Is(err, xraymgr.ErrUnknownServer) {
			return nil, status.Errorf(codes.NotFound, "%v", err)
		}
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return &Empty{}, nil
}

func (h *handler) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	stats, err := h.mgr.UserTraffic(ctx, req.UserID, req.DeviceID, req.ServerID)
	if err != nil {
		if errors.Is(err, xraymgr.ErrUnknownServer) {
			return nil, status.Errorf(codes.NotFound, "%v", err)
		}
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return &GetStatsResponse{
		Identifier:    stats.Identifier,
		UploadBytes:   stats.UploadBytes,
		DownloadBytes: stats.DownloadBytes,
		TotalBytes:    stats.TotalBytes,
	}, nil
}

func (h *handler) GetToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.UserID <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "user_id is required")
	}
	return &TokenResponse{
		Token:           h.tokens.Generate(req.UserID),
		SubscriptionURL: h.tokens.SubscriptionURL(req.UserID, h.domain),
	}, nil
}
