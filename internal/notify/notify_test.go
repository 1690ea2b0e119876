package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/stopgate/internal/resilience"
)

func TestWithTimeoutPassesThrough(t *testing.T) {
	rec := &Recorder{}
	n := WithTimeout(rec, time.Second)
	require.NoError(t, n.Notify(context.Background(), "s1", "hello"))
	assert.Equal(t, []Message{{SessionID: "s1", Text: "hello"}}, rec.Messages())
}

func TestWithTimeoutExpires(t *testing.T) {
	defer goleak.VerifyNone(t)
	slow := Func(func(ctx context.Context, _, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	err := WithTimeout(slow, 20*time.Millisecond).Notify(context.Background(), "s1", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotifierFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutWrapsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	rec.Fail(boom)
	err := WithTimeout(rec, time.Second).Notify(context.Background(), "s1", "x")
	assert.ErrorIs(t, err, ErrNotifierFailure)
	assert.ErrorIs(t, err, boom)
}

func TestWithBreakerOpens(t *testing.T) {
	rec := &Recorder{}
	rec.Fail(errors.New("down"))
	b := resilience.NewBreaker(2, time.Minute)
	n := WithBreaker(rec, b)
	ctx := context.Background()

	_ = n.Notify(ctx, "s", "x")
	_ = n.Notify(ctx, "s", "x")
	rec.Fail(nil)
	err := n.Notify(ctx, "s", "x")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Empty(t, rec.Messages())
}

func TestRecorderFor(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()
	_ = rec.Notify(ctx, "a", "1")
	_ = rec.Notify(ctx, "b", "2")
	_ = rec.Notify(ctx, "a", "3")
	assert.Len(t, rec.For("a"), 2)
	assert.Len(t, rec.For("b"), 1)
}

func TestWriterEmitsJSONLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	require.NoError(t, w.Notify(context.Background(), "s1", "review please"))

	line := strings.TrimSuffix(buf.String(), "\n")
	var got InjectLine
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, InjectLine{Type: "inject", SessionID: "s1", Role: "user", Text: "review please"}, got)
}

func TestWriterHonorsCanceledContext(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewWriter(&buf, nil).Notify(ctx, "s1", "x"))
	assert.Zero(t, buf.Len())
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	flushErr error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakePublisher) FlushWithContext(context.Context) error { return f.flushErr }

func TestNATSPublishesPerSessionSubject(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub, "")
	require.NoError(t, n.Notify(context.Background(), "abc", "text"))
	require.Equal(t, []string{"stopgate.inject.abc"}, pub.subjects)

	var got InjectLine
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "abc", got.SessionID)
	assert.Equal(t, "text", got.Text)
}

func TestNATSFlushError(t *testing.T) {
	pub := &fakePublisher{flushErr: errors.New("no ack")}
	err := NewNATS(pub, "x").Notify(context.Background(), "abc", "text")
	assert.ErrorContains(t, err, "nats flush")
}

func TestFactoryKinds(t *testing.T) {
	built, err := New(Options{Kind: KindNone})
	require.NoError(t, err)
	assert.NoError(t, built.Notifier.Notify(context.Background(), "s", "x"))

	var buf bytes.Buffer
	built, err = New(Options{Kind: KindStdio, Out: &buf, BreakerFailures: 3, BreakerCooldown: time.Second})
	require.NoError(t, err)
	require.NotNil(t, built.Breaker)
	require.NoError(t, built.Notifier.Notify(context.Background(), "s", "x"))
	assert.Contains(t, buf.String(), `"type":"inject"`)
	assert.NoError(t, built.Close())

	_, err = New(Options{Kind: KindStdio})
	assert.Error(t, err)
	_, err = New(Options{Kind: "carrier-pigeon"})
	assert.Error(t, err)
}

// #region fake-host

type hostServer interface{}

type fakeHost struct {
	mu       sync.Mutex
	received []*structpb.Struct
	accept   bool
}

func (h *fakeHost) inject(req *structpb.Struct) *structpb.Struct {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, req)
	out, _ := structpb.NewStruct(map[string]any{"accepted": h.accept})
	return out
}

func startHost(t *testing.T, host *fakeHost) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "stopgate.host.v1.Host",
		HandlerType: (*hostServer)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "InjectPrompt",
			Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				return host.inject(in), nil
			},
		}},
	}, host)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return conn
}

// #endregion fake-host

func TestGRPCNotify(t *testing.T) {
	host := &fakeHost{accept: true}
	n := NewGRPC(startHost(t, host))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Notify(ctx, "s1", "please review"))

	require.Len(t, host.received, 1)
	fields := host.received[0].GetFields()
	assert.Equal(t, "s1", fields["session_id"].GetStringValue())
	assert.Equal(t, "user", fields["role"].GetStringValue())
	assert.Equal(t, "please review", fields["text"].GetStringValue())
}

func TestGRPCNotifyRejected(t *testing.T) {
	n := NewGRPC(startHost(t, &fakeHost{accept: false}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorContains(t, n.Notify(ctx, "s1", "x"), "rejected")
}
