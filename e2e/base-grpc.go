package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const callTimeout = 10 * time.Second

// BaseGrpcSuite dials the node named by NODE_ADDR. Scenarios are skipped when
// no node is running.
type BaseGrpcSuite struct {
	suite.Suite
	Config Config
}

func (s *BaseGrpcSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.NodeAddr == "" {
		s.T().Skip("NODE_ADDR not set, no node to run against")
	}
}

// WithNode runs fn with a health client on a fresh connection to the node.
func (s *BaseGrpcSuite) WithNode(step string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	t := s.T()
	s.banner(t, step)

	conn, err := grpc.NewClient(s.Config.NodeAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.traceCalls(t)),
	)
	s.Require().NoError(err, "dialing node at %s", s.Config.NodeAddr)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}

func (s *BaseGrpcSuite) banner(t *testing.T, step string) {
	line := fmt.Sprintf("  ====== %s ======", step)
	if s.Config.Colours {
		line = color.New(color.BgBlack, color.FgGreen).Render(line)
	}
	t.Log(line)
}

// traceCalls logs every call with its status code, and the JSON bodies when
// E2E_DEBUG_JSON is set.
func (s *BaseGrpcSuite) traceCalls(t *testing.T) grpc.UnaryClientInterceptor {
	dump := protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: true}

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		t.Logf("GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))

		if !s.Config.DebugJSON {
			return err
		}
		if m, ok := req.(proto.Message); ok {
			t.Logf("  request: %s", dump.Format(m))
		}
		if m, ok := reply.(proto.Message); ok && err == nil {
			t.Logf("  response: %s", dump.Format(m))
		}
		return err
	}
}
