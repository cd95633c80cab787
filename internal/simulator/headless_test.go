package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/muurk/accelsock/internal/telemetry"
)

type fakeSender struct {
	mu       sync.Mutex
	readings []telemetry.Reading
	failAt   int
	done     chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{done: make(chan struct{})}
}

func (f *fakeSender) Send(r telemetry.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.readings)+1 == f.failAt {
		return errors.New("write failed")
	}
	f.readings = append(f.readings, r)
	return nil
}

func (f *fakeSender) Done() <-chan struct{} {
	return f.done
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

func TestRunHeadlessCount(t *testing.T) {
	sender := newFakeSender()

	sent, err := RunHeadless(context.Background(), sender, NewMotion(), time.Millisecond, 5)
	if err != nil {
		t.Fatalf("RunHeadless() error = %v", err)
	}
	if sent != 5 || sender.count() != 5 {
		t.Errorf("sent %d (sender saw %d), want 5", sent, sender.count())
	}

	first := sender.readings[0]
	if first != NewMotion().Next(0) {
		t.Errorf("first reading = %+v, want the t=0 reading", first)
	}
}

func TestRunHeadlessStops(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fakeSender, context.CancelFunc)
		wantErr bool
	}{
		{
			name:  "context cancelled",
			setup: func(_ *fakeSender, cancel context.CancelFunc) { cancel() },
		},
		{
			name:    "connection closed",
			setup:   func(f *fakeSender, _ context.CancelFunc) { close(f.done) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newFakeSender()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				for sender.count() < 3 {
					time.Sleep(time.Millisecond)
				}
				tt.setup(sender, cancel)
			}()

			sent, err := RunHeadless(ctx, sender, nil, time.Millisecond, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunHeadless() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sent < 3 {
				t.Errorf("sent = %d, want at least 3", sent)
			}
		})
	}
}

func TestRunHeadlessErrors(t *testing.T) {
	if _, err := RunHeadless(context.Background(), newFakeSender(), nil, 0, 1); err == nil {
		t.Error("zero interval should be rejected")
	}

	sender := newFakeSender()
	sender.failAt = 2
	sent, err := RunHeadless(context.Background(), sender, nil, time.Millisecond, 10)
	if err == nil {
		t.Fatal("send failure should be returned")
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
}
