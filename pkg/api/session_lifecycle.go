package api

import (
	"go.uber.org/multierr"
)

// Close closes the session and releases resources. Every statement is
// reset, a pending transaction is rolled back, every statement is
// finalized and the engine connection is closed. All steps run even when
// one fails. Closing a closed session is a no-op.
func (s *Session) Close() error {
	if err := s.guard.check(); err != nil {
		return err
	}
	if s.closed {
		return nil
	}
	s.closed = true

	s.cache.InvalidateAll(nil)
	for _, p := range s.cursors {
		if c := p.Value(); c != nil {
			c.detach()
		}
	}
	s.cursors = nil

	var errs error
	if s.tx.state == TxImplicitOpen {
		s.logger.Warn("Rolling back uncommitted transaction")
		errs = multierr.Append(errs, s.tx.rollback())
	}
	errs = multierr.Append(errs, s.cache.Close())
	errs = multierr.Append(errs, engineError(s.conn.Close()))

	if errs != nil {
		s.logger.Warn("close: %v", errs)
		return errs
	}
	s.logger.Debug("Session closed")
	return nil
}
