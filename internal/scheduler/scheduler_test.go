package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 90 * time.Second, AlignToBucket: true}, zerolog.Nop())
	now := time.Date(2026, 5, 1, 0, 1, 10, 0, time.UTC)

	next := s.nextTick(now)
	want := time.Date(2026, 5, 1, 0, 1, 30, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("对齐后下一次应为 %s, 实际 %s", want, next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2026, 5, 1, 0, 1, 10, 0, time.UTC)

	if next := s.nextTick(now); !next.Equal(now.Add(time.Minute)) {
		t.Fatalf("未对齐时应为 now+interval, 实际 %s", next)
	}
}

func TestRunFiresImmediatelyAndRepeats(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) >= 3 {
				cancel()
			}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("应返回 context.Canceled, 实际 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("调度器未按时执行")
	}
	if calls.Load() < 3 {
		t.Fatalf("应至少执行 3 次, 实际 %d", calls.Load())
	}
}

func TestRunHonoursStartupDelayCancel(t *testing.T) {
	s := New(Options{Interval: time.Second, StartupDelay: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called bool
	err := s.Run(ctx, func(context.Context, time.Time) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("启动延迟期间取消不应执行任务: err=%v called=%v", err, called)
	}
}

func TestDailyNext(t *testing.T) {
	d, err := NewDaily("", "UTC", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDaily 失败: %v", err)
	}
	from := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	if next := d.Next(from); !next.Equal(want) {
		t.Fatalf("下一次日报应为 %s, 实际 %s", want, next)
	}
}

func TestDailyRejectsBadInput(t *testing.T) {
	if _, err := NewDaily("not a cron", "", zerolog.Nop()); err == nil {
		t.Fatal("非法 cron 应报错")
	}
	if _, err := NewDaily("0 9 * * *", "Mars/Olympus", zerolog.Nop()); err == nil {
		t.Fatal("非法时区应报错")
	}
}
