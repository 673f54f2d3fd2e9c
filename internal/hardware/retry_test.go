package hardware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/idiarso/Node-Maret-Pakir-sub001/internal/errors"
)

type RetryTestSuite struct {
	suite.Suite
	cfg RetryConfig
}

func (s *RetryTestSuite) SetupTest() {
	s.cfg = RetryConfig{
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}
}

func (s *RetryTestSuite) TestFirstAttemptSucceeds() {
	calls := 0
	err := WithRetry(context.Background(), s.cfg, "gate", "open", errors.ErrGateOpenFailed,
		func(ctx context.Context) error {
			calls++
			return nil
		})
	s.NoError(err)
	s.Equal(1, calls)
}

func (s *RetryTestSuite) TestTransientFailureRecovers() {
	calls := 0
	err := WithRetry(context.Background(), s.cfg, "gate", "open", errors.ErrGateOpenFailed,
		func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New(errors.ErrSerialWrite, "transient")
			}
			return nil
		})
	s.NoError(err)
	s.Equal(3, calls)
}

func (s *RetryTestSuite) TestExhaustionWrapsWithCode() {
	calls := 0
	err := WithRetry(context.Background(), s.cfg, "gate", "open", errors.ErrGateOpenFailed,
		func(ctx context.Context) error {
			calls++
			return errors.New(errors.ErrSerialWrite, "still down")
		})
	s.Error(err)
	s.Equal(3, calls)
	// the wrapped error keeps its original typed code
	s.Equal(errors.ErrSerialWrite, errors.GetCode(err))
	hwErr, ok := err.(*errors.HardwareError)
	s.Require().True(ok)
	s.Equal("gate", hwErr.Device)
	s.Equal("open", hwErr.Op)
}

func (s *RetryTestSuite) TestNonRetryableStopsEarly() {
	calls := 0
	err := WithRetry(context.Background(), s.cfg, "camera", "capture", errors.ErrCaptureFailed,
		func(ctx context.Context) error {
			calls++
			return errors.New(errors.ErrInvalidParam, "bad frame size")
		})
	s.Error(err)
	s.Equal(1, calls)
	s.Equal(errors.ErrInvalidParam, errors.GetCode(err))
}

func (s *RetryTestSuite) TestContextCancelAborts() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithRetry(ctx, s.cfg, "printer", "print", errors.ErrPrintFailed,
		func(ctx context.Context) error {
			calls++
			return nil
		})
	s.Error(err)
	s.Equal(0, calls)
	s.Equal(errors.ErrCanceled, errors.GetCode(err))
}

func (s *RetryTestSuite) TestCancelBetweenAttempts() {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, RetryConfig{MaxAttempts: 3, Backoff: []time.Duration{50 * time.Millisecond}},
		"gate", "open", errors.ErrGateOpenFailed,
		func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New(errors.ErrSerialWrite, "transient")
		})
	s.Error(err)
	s.Equal(1, calls)
	s.Equal(errors.ErrCanceled, errors.GetCode(err))
}

func TestRetryTestSuite(t *testing.T) {
	suite.Run(t, new(RetryTestSuite))
}
