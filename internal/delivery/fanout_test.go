package delivery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/Nemupy/tokumei-jinro/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(nil) })
	return logs
}

func TestFanOut_AllDelivered(t *testing.T) {
	targets := []types.ChannelID{"a", "b", "c"}
	var calls atomic.Int32

	report := FanOut(context.Background(), "test", targets, func(ctx context.Context, ch types.ChannelID) error {
		calls.Add(1)
		return nil
	})

	if calls.Load() != 3 {
		t.Fatalf("unexpected calls: got=%d want=3", calls.Load())
	}
	if report.Err != nil {
		t.Fatalf("unexpected error: %v", report.Err)
	}
	if len(report.Delivered) != 3 || report.Delivered[0] != "a" || report.Delivered[2] != "c" {
		t.Fatalf("delivered should keep target order: %v", report.Delivered)
	}
}

func TestFanOut_FailureIsolation(t *testing.T) {
	logs := observeLogs(t)
	boom := errors.New("unreachable")

	targets := []types.ChannelID{"a", "broken", "c", "panics"}
	report := FanOut(context.Background(), "relay", targets, func(ctx context.Context, ch types.ChannelID) error {
		switch ch {
		case "broken":
			return boom
		case "panics":
			panic("webhook exploded")
		}
		return nil
	})

	if report.Attempted != 4 {
		t.Fatalf("unexpected attempted: %d", report.Attempted)
	}
	if len(report.Delivered) != 2 || report.Delivered[0] != "a" || report.Delivered[1] != "c" {
		t.Fatalf("healthy targets must still be delivered: %v", report.Delivered)
	}

	failures := report.Failures()
	if len(failures) != 2 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	var de *DeliveryError
	if !errors.As(failures[0], &de) || de.Channel != "broken" {
		t.Fatalf("first failure should be a DeliveryError for 'broken': %v", failures[0])
	}
	if !errors.Is(report.Err, boom) {
		t.Fatalf("report error should wrap the cause: %v", report.Err)
	}

	if got := logs.FilterMessage("Delivery failed").Len(); got != 2 {
		t.Fatalf("each failure should be logged once, got %d", got)
	}
}

func TestFanOut_SlowTargetDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	fastDone := make(chan struct{}, 2)

	done := make(chan Report)
	go func() {
		done <- FanOut(context.Background(), "relay", []types.ChannelID{"slow", "f1", "f2"}, func(ctx context.Context, ch types.ChannelID) error {
			if ch == "slow" {
				<-release
				return nil
			}
			fastDone <- struct{}{}
			return nil
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-fastDone:
		case <-time.After(2 * time.Second):
			t.Fatalf("fast targets were blocked by the slow one")
		}
	}
	close(release)

	report := <-done
	if len(report.Delivered) != 3 {
		t.Fatalf("unexpected delivered: %v", report.Delivered)
	}
}

func TestFanOut_NoTargets(t *testing.T) {
	report := FanOut(context.Background(), "noop", nil, func(ctx context.Context, ch types.ChannelID) error {
		t.Fatalf("send should not be called")
		return nil
	})
	if report.Attempted != 0 || report.Err != nil || len(report.Delivered) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
