package simulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/telemetry"
	"go.uber.org/zap"
)

// DefaultInterval matches the rate the browser page sends at.
const DefaultInterval = 100 * time.Millisecond

// Sender is the part of Client that RunHeadless needs.
type Sender interface {
	Send(telemetry.Reading) error
	Done() <-chan struct{}
}

// RunHeadless sends one reading from motion every interval until ctx is
// done, the connection ends, or count readings have been sent (count <= 0
// means no limit). It returns how many readings were sent.
func RunHeadless(ctx context.Context, client Sender, motion *Motion, interval time.Duration, count int) (int, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", interval)
	}
	if motion == nil {
		motion = NewMotion()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	sent := 0

	send := func(elapsed time.Duration) error {
		reading := motion.Next(elapsed)
		if err := client.Send(reading); err != nil {
			return err
		}
		sent++
		logging.Debug("Sent reading",
			append([]zap.Field{zap.Int("seq", sent)}, reading.Fields()...)...,
		)
		return nil
	}

	// First reading goes out immediately, like the page does once motion
	// events start.
	if err := send(0); err != nil {
		return sent, err
	}

	for count <= 0 || sent < count {
		select {
		case <-ctx.Done():
			return sent, nil
		case <-client.Done():
			return sent, errors.New("connection closed by server")
		case now := <-ticker.C:
			if err := send(now.Sub(start)); err != nil {
				return sent, err
			}
		}
	}

	logging.Info("Finished sending readings", zap.Int("count", sent))
	return sent, nil
}
