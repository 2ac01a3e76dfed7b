package scope

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPCServer(t *testing.T, outBufferSize int) (*grpcServer, <-chan error) {
	t.Helper()
	server, err := newGRPCServer("localhost:", outBufferSize)
	require.NoError(t, err)
	require.NoError(t, server.listen())

	serverResult := make(chan error, 1)
	go func() {
		serverResult <- server.serve()
	}()
	return server, serverResult
}

func TestStartStopGRPCServer(t *testing.T) {
	server, serverResult := startGRPCServer(t, defaultOutBufferSize)

	time.Sleep(10 * time.Millisecond)
	server.Stop()
	assert.NoError(t, <-serverResult)
}

func TestStopGRPCServerBeforeServe(t *testing.T) {
	server, err := newGRPCServer("localhost:", defaultOutBufferSize)
	require.NoError(t, err)
	require.NoError(t, server.listen())
	addr := server.Addr().String()

	server.Stop()
	assert.NoError(t, server.serve())

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err, "the listener must be closed")
}

func TestServeWithoutListen(t *testing.T) {
	server, err := newGRPCServer("localhost:", defaultOutBufferSize)
	require.NoError(t, err)

	assert.Error(t, server.serve())
	server.SendFrame(&structpb.Struct{})
}

func TestCloseUnresponsiveStreams(t *testing.T) {
	server, _ := startGRPCServer(t, 1)
	defer server.Stop()

	frames := server.getFrameStream()

	frame1 := &structpb.Struct{}
	server.SendFrame(frame1)
	server.SendFrame(&structpb.Struct{})
	// frames are handled in order, so the stream is closed once the next frame was taken
	server.SendFrame(&structpb.Struct{})

	frame, open := <-frames
	assert.Same(t, frame1, frame)
	assert.True(t, open)

	frame, open = <-frames
	assert.Nil(t, frame)
	assert.False(t, open)
}

func TestSendFramesToClient(t *testing.T) {
	server, _ := startGRPCServer(t, 1)
	defer server.Stop()

	conn, err := grpc.NewClient(server.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = conn.Invoke(ctx, getStatusMethod, new(emptypb.Empty), new(structpb.Struct))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	stream, err := conn.NewStream(ctx, &scopeServiceDesc.Streams[0], getFramesMethod)
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(new(emptypb.Empty)))
	require.NoError(t, stream.CloseSend())

	frames := make([]*structpb.Struct, 0)
	framesReceived := &sync.WaitGroup{}
	framesReceived.Add(2)
	go func() {
		for range 2 {
			frame := new(structpb.Struct)
			err := stream.RecvMsg(frame)
			if !assert.NoError(t, err) {
				framesReceived.Done()
				continue
			}
			frames = append(frames, frame)
			framesReceived.Done()
		}
	}()
	time.Sleep(100 * time.Millisecond)

	server.SendFrame(encodeStatusFrame(&StatusFrame{Timestamp: time.Now()}))
	time.Sleep(10 * time.Millisecond)
	server.SendFrame(encodeSpectralFrame(&SpectralFrame{Timestamp: time.Now()}))

	framesReceived.Wait()
	require.Len(t, frames, 2)
	assert.Equal(t, StatusFrameKind, frameKind(frames[0]))
	assert.Equal(t, SpectralFrameKind, frameKind(frames[1]))

	reply := new(structpb.Struct)
	err = conn.Invoke(ctx, getStatusMethod, new(emptypb.Empty), reply)
	require.NoError(t, err)
	assert.Equal(t, StatusFrameKind, frameKind(reply))
}
