package rediskv

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

// observerAdapter adapts the store logger and MetricsCollector to
// storage.StorageObserver
type observerAdapter struct {
	logger  *zap.Logger
	metrics MetricsCollector
}

func (oa *observerAdapter) OnKeySet(key string) {}

func (oa *observerAdapter) OnKeyDeleted(key string) {}

func (oa *observerAdapter) OnKeyExpired(key string) {
	oa.logger.Debug("Key expired", zap.String("key", key))
	if oa.metrics != nil {
		oa.metrics.RecordKeyExpired()
	}
}

// commandTimer records one facade call
type commandTimer struct {
	metrics MetricsCollector
	cmd     string
	start   time.Time
}

func (s *Store) track(cmd string) commandTimer {
	return commandTimer{metrics: s.config.metrics, cmd: cmd, start: time.Now()}
}

// done records the duration and, for failures other than a missing key,
// the error kind. It returns err unchanged.
func (t commandTimer) done(err error) error {
	if t.metrics == nil {
		return err
	}
	t.metrics.RecordCommandProcessed(t.cmd, time.Since(t.start))
	if err != nil && !errors.Is(err, ErrNotFound) {
		t.metrics.RecordError(errorKind(err))
	}
	return err
}

// fail records err under an explicit kind
func (t commandTimer) fail(kind string, err error) error {
	if t.metrics != nil {
		t.metrics.RecordCommandProcessed(t.cmd, time.Since(t.start))
		t.metrics.RecordError(kind)
	}
	return err
}
