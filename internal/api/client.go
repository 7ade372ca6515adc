package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a gRPC client for the VPNAdmin API.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the admin API at the given address.
// Returns an error if the server is not reachable within 2 seconds.
func Dial(addr string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.conn.Invoke(ctx, "/jvpn.v1.VPNAdmin/"+method, req, resp)
}

// GetStatus calls the GetStatus RPC.
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{}
	err := c.invoke(ctx, "GetStatus", &Empty{}, resp)
	return resp, err
}

// CreateKey calls the CreateKey RPC.
func (c *Client) CreateKey(ctx context.Context, req *CreateKeyRequest) (*CreateKeyResponse, error) {
	resp := &CreateKeyResponse{}
	err := c.invoke(ctx, "CreateKey", req, resp)
	return resp, err
}

// RevokeKey calls the RevokeKey RPC.
func (c *Client) RevokeKey(ctx context.Context, userID int64, deviceID int, serverID string) error {
	return c.invoke(ctx, "RevokeKey", &RevokeKeyRequest{UserID: userID, DeviceID: deviceID, ServerID: serverID}, &Empty{})
}

// GetStats calls the GetStats RPC.
func (c *Client) GetStats(ctx context.Context, userID int64, deviceID int, serverID string) (*GetStatsResponse, error) {
	resp := &GetStatsResponse{}
	err := c.invoke(ctx, "GetStats", &GetStatsRequest{UserID: userID, DeviceID: deviceID, ServerID: serverID}, resp)
	return resp, err
}

// GetToken calls the GetToken RPC.
func (c *Client) GetToken(ctx context.Context, userID int64) (*TokenResponse, error) {
	resp := &TokenResponse{}
	err := c.invoke(ctx, "GetToken", &TokenRequest{UserID: userID}, resp)
	return resp, err
}
