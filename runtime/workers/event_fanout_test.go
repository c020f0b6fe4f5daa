package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"quiz-lab/domain"
	"quiz-lab/domain/event"
	"quiz-lab/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Consume(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	failing := mocks.NewMockEventSink(ctrl)
	healthy := mocks.NewMockEventSink(ctrl)

	evt := event.RoomGone{Room: "r1", At: time.Now()}

	// Given a first sink failing, the second one still receives the event
	gomock.InOrder(
		failing.EXPECT().Consume(gomock.Any(), evt).Return(fmt.Errorf("boom")),
		healthy.EXPECT().Consume(gomock.Any(), evt).Return(nil),
	)

	fanout := NewEventFanout(log, time.Second, failing, healthy)
	req.NoError(fanout.Consume(context.Background(), evt))
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctrl := gomock.NewController(t)
	slow := mocks.NewMockEventSink(ctrl)

	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		})

	fanout := NewEventFanout(log, 20*time.Millisecond, slow)
	start := time.Now()
	req.NoError(fanout.Consume(context.Background(), event.RoomChanged{Room: domain.NewRoom("r1", "Quiz", "Alice")}))
	req.Less(time.Since(start), time.Second)
}
