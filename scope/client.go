package scope

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client allows to connect to a scope server and receive frames.
type Client struct {
	address string

	conn *grpc.ClientConn
}

// NewClient creates a new client for the given address.
func NewClient(address string) *Client {
	return &Client{
		address: address,
	}
}

// Open the connection to the scope server.
func (c *Client) Open() error {
	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, err := grpc.NewClient(c.address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("cannot connect to scope server: %w", err)
	}
	c.conn = conn

	return nil
}

// Close the connection to the scope server.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// GetStatus returns the latest status that was sent by the scope server.
func (c *Client) GetStatus(ctx context.Context) (*StatusFrame, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, getStatusMethod, new(emptypb.Empty), out)
	if err != nil {
		return nil, fmt.Errorf("cannot get status: %w", err)
	}
	return decodeStatusFrame(out)
}

// GetFrames provides a set of channels to receive frames from the scope server. The channels are closed
// when the stream ends or the given context is done.
func (c *Client) GetFrames(ctx context.Context) (chan *StatusFrame, chan *SpectralFrame, error) {
	if c.conn == nil {
		return nil, nil, fmt.Errorf("not connected")
	}

	stream, err := c.conn.NewStream(ctx, &scopeServiceDesc.Streams[0], getFramesMethod)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open frame stream: %w", err)
	}
	if err := stream.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, nil, fmt.Errorf("cannot request frames: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, fmt.Errorf("cannot request frames: %w", err)
	}

	statusFrames := make(chan *StatusFrame, 1)
	spectralFrames := make(chan *SpectralFrame, 1)
	go func() {
		defer close(statusFrames)
		defer close(spectralFrames)
		for {
			frame := new(structpb.Struct)
			err := stream.RecvMsg(frame)
			if err != nil {
				return
			}

			switch frameKind(frame) {
			case StatusFrameKind:
				statusFrame, err := decodeStatusFrame(frame)
				if err != nil {
					log.Printf("[ERROR] invalid status frame: %v", err)
					continue
				}
				select {
				case statusFrames <- statusFrame:
				case <-ctx.Done():
					return
				}
			case SpectralFrameKind:
				spectralFrame, err := decodeSpectralFrame(frame)
				if err != nil {
					log.Printf("[ERROR] invalid spectral frame: %v", err)
					continue
				}
				select {
				case spectralFrames <- spectralFrame:
				case <-ctx.Done():
					return
				}
			default:
				log.Printf("[DEBUG] unknown frame kind %q", frameKind(frame))
			}
		}
	}()

	return statusFrames, spectralFrames, nil
}
