package gateway

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeAutomation answers every call-automation method and records requests.
type fakeAutomation struct {
	mu       sync.Mutex
	requests map[string][]*structpb.Struct
	failWith map[string]error
}

func (f *fakeAutomation) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)

	req := &structpb.Struct{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}

	f.mu.Lock()
	f.requests[method] = append(f.requests[method], req)
	err := f.failWith[method]
	f.mu.Unlock()
	if err != nil {
		return err
	}

	resp := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if method == MethodCreateCall {
		resp.Fields["call_connection_id"] = structpb.NewStringValue("conn-42")
	}
	return stream.SendMsg(resp)
}

func (f *fakeAutomation) last(method string) *structpb.Struct {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[method]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func newTestGateway(t *testing.T) (*GRPCGateway, *fakeAutomation) {
	t.Helper()

	fake := &fakeAutomation{
		requests: make(map[string][]*structpb.Struct),
		failWith: make(map[string]error),
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(fake.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg := DefaultGRPCConfig()
	cfg.Address = "passthrough:///bufnet"
	cfg.DialOptions = []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	}

	gw, err := NewGRPCGateway(cfg)
	if err != nil {
		t.Fatalf("NewGRPCGateway() error: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })
	return gw, fake
}

func TestGRPCGatewayDial(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := gw.Dial(ctx, DialRequest{
		Target:           "+15551234567",
		Caller:           "+15550000000",
		CallbackURL:      "https://example.com/api/v1/callbacks",
		SpeechEndpoint:   "https://speech.example.com",
		OperationContext: "ivr|abc",
	})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	if handle != "conn-42" {
		t.Errorf("Dial() = %q, want %q", handle, "conn-42")
	}

	req := fake.last(MethodCreateCall)
	if req == nil {
		t.Fatal("CreateCall not received")
	}
	if got := req.Fields["target"].GetStringValue(); got != "+15551234567" {
		t.Errorf("target = %q, want +15551234567", got)
	}
	if got := req.Fields["operation_context"].GetStringValue(); got != "ivr|abc" {
		t.Errorf("operation_context = %q, want ivr|abc", got)
	}
}

func TestGRPCGatewayRecognizeAndHangup(t *testing.T) {
	gw, fake := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := gw.StartRecognition(ctx, "conn-42", RecognizeRequest{
		Prompt:           "Press 1",
		Voice:            "en-GB-SoniaNeural",
		Timeout:          10 * time.Second,
		MaxTones:         1,
		OperationContext: "ivr|abc",
	})
	if err != nil {
		t.Fatalf("StartRecognition() error: %v", err)
	}

	req := fake.last(MethodStartRecognizing)
	if got := req.Fields["initial_silence_timeout_ms"].GetNumberValue(); got != 10000 {
		t.Errorf("initial_silence_timeout_ms = %v, want 10000", got)
	}
	if got := req.Fields["max_tones_to_collect"].GetNumberValue(); got != 1 {
		t.Errorf("max_tones_to_collect = %v, want 1", got)
	}

	if err := gw.Hangup(ctx, "conn-42"); err != nil {
		t.Fatalf("Hangup() error: %v", err)
	}
	if got := fake.last(MethodHangUp).Fields["call_connection_id"].GetStringValue(); got != "conn-42" {
		t.Errorf("call_connection_id = %q, want conn-42", got)
	}
}

func TestGRPCGatewayCommandError(t *testing.T) {
	gw, fake := newTestGateway(t)
	fake.failWith[MethodPlayToAll] = status.Error(codes.Unavailable, "provider down")

	err := gw.PlayPrompt(context.Background(), "conn-42", PlayRequest{Text: "Goodbye."})
	if err == nil {
		t.Fatal("expected error")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %T, want *CommandError", err)
	}
	if cmdErr.Op != OpPlay || cmdErr.Call != "conn-42" {
		t.Errorf("CommandError = %+v, want op=play call=conn-42", cmdErr)
	}
	if status.Code(errors.Unwrap(cmdErr.Cause)) != codes.Unavailable {
		t.Errorf("cause code = %v, want Unavailable", status.Code(errors.Unwrap(cmdErr.Cause)))
	}
}

func TestGRPCGatewayRequiresHandle(t *testing.T) {
	gw, _ := newTestGateway(t)

	if err := gw.Hangup(context.Background(), ""); !errors.Is(err, ErrNoCallHandle) {
		t.Errorf("Hangup(\"\") error = %v, want ErrNoCallHandle", err)
	}
}

func TestGRPCGatewayClosed(t *testing.T) {
	gw, _ := newTestGateway(t)
	_ = gw.Close()

	if gw.Ready() {
		t.Error("Ready() = true after Close")
	}
	if _, err := gw.Dial(context.Background(), DialRequest{Target: "+1"}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Dial() after Close error = %v, want ErrNotReady", err)
	}
}
