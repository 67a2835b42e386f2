package api

import (
	"slices"
	"weak"
)

// maxTrackedCursors bounds the cursor list before dead entries are pruned.
const maxTrackedCursors = 200

// ID returns the session id used in log lines.
func (s *Session) ID() string {
	return s.id
}

// Path returns the path the session was opened with.
func (s *Session) Path() string {
	return s.path
}

// Cursor creates a cursor bound to this session.
func (s *Session) Cursor() (*Cursor, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.newCursor(), nil
}

func (s *Session) newCursor() *Cursor {
	c := &Cursor{
		ArraySize: 1,
		session:   s,
		rowCount:  -1,
	}
	if len(s.cursors) >= maxTrackedCursors {
		s.cursors = slices.DeleteFunc(s.cursors, func(p weak.Pointer[Cursor]) bool {
			return p.Value() == nil
		})
	}
	s.cursors = append(s.cursors, weak.Make(c))
	return c
}

// check runs ahead of every session call.
func (s *Session) check() error {
	if err := s.guard.check(); err != nil {
		return err
	}
	if s.closed {
		return closedSessionError()
	}
	return nil
}

// syncCollations applies registry collation changes to the engine.
func (s *Session) syncCollations() error {
	if s.registry.Generation() == s.collationGen {
		return nil
	}

	snapshot, gen := s.registry.Collations()
	for name, entry := range snapshot {
		if s.collations[name] == entry.Version {
			continue
		}
		if err := s.conn.CreateCollation(name, entry.Fn); err != nil {
			return engineError(err)
		}
		s.collations[name] = entry.Version
	}
	for name := range s.collations {
		if _, ok := snapshot[name]; ok {
			continue
		}
		if err := s.conn.CreateCollation(name, nil); err != nil {
			return engineError(err)
		}
		delete(s.collations, name)
	}
	s.collationGen = gen
	return nil
}
