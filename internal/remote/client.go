package remote

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// #region client-struct
// Client implements control.AllocationStore and control.ObservationSource
// over a gRPC connection.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to an allocation service at addr without TLS.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn uses an existing connection, which the caller closes.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #region rpcs
func (c *Client) ReadWeights(ctx context.Context, experimentID string) (allocation.Weights, error) {
	var resp readWeightsResponse
	if err := c.invoke(ctx, ReadWeightsMethod, readWeightsRequest{ExperimentID: experimentID}, &resp); err != nil {
		return nil, fmt.Errorf("read weights rpc: %w", err)
	}
	return resp.Weights, nil
}

func (c *Client) WriteWeights(ctx context.Context, experimentID string, weights allocation.Weights, explanation allocation.AllocationExplanation) error {
	req := writeWeightsRequest{ExperimentID: experimentID, Weights: weights, Explanation: explanation}
	if err := c.invoke(ctx, WriteWeightsMethod, req, nil); err != nil {
		return fmt.Errorf("write weights rpc: %w", err)
	}
	return nil
}

func (c *Client) ReadObservations(ctx context.Context, experimentID string, windowStart, windowEnd int64) (allocation.Observations, error) {
	var resp readObservationsResponse
	req := readObservationsRequest{ExperimentID: experimentID, WindowStart: windowStart, WindowEnd: windowEnd}
	if err := c.invoke(ctx, ReadObservationsMethod, req, &resp); err != nil {
		return nil, fmt.Errorf("read observations rpc: %w", err)
	}
	return resp.Observations, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return fromStruct(out, resp)
}

// #endregion rpcs
