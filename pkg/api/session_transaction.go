package api

// Commit commits the pending implicit transaction, if any. If the engine
// refuses, the transaction stays open and the error is returned.
func (s *Session) Commit() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.tx.commit()
}

// Rollback rolls back the pending implicit transaction, if any. Every
// statement is reset first, so cursors mid-iteration stop with an
// InterfaceError on their next fetch.
func (s *Session) Rollback() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.tx.rollback()
}

// InTransaction returns true if session is currently in a transaction
func (s *Session) InTransaction() bool {
	return s.tx.state == TxImplicitOpen
}

// IsolationLevel returns current transaction isolation level
func (s *Session) IsolationLevel() IsolationLevel {
	return s.options.Isolation
}

// SetIsolationLevel changes how later implicit transactions are opened.
// Switching to IsolationAutocommit commits a pending transaction first.
func (s *Session) SetIsolationLevel(level IsolationLevel) error {
	if err := s.check(); err != nil {
		return err
	}
	if level < IsolationDefault || level > IsolationAutocommit {
		return NewError(ErrCodeProgramming, "invalid isolation level", nil)
	}
	if level == IsolationAutocommit {
		if err := s.tx.commit(); err != nil {
			return err
		}
	}
	s.options.Isolation = level

	s.logger.Debug("Isolation level set to: %s", level.String())
	return nil
}
