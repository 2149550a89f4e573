package game

import "time"

// Two independent single-shot timers per session. Arming always invalidates
// the previously pending timer of the same kind: the generation counter
// bumps on every arm and cancel, and a callback whose captured generation no
// longer matches must treat itself as stale and do nothing. This closes the
// race between a timer that has fired but not yet run and state that has
// already moved on through another path.

// ArmTurnTimer schedules the turn-timeout for the color currently to move.
// The timer is not armed when that color's seat is empty, so an empty seat
// is never penalized. Returns whether a timer was armed.
// Call with the session locked.
func (s *Session) ArmTurnTimer(d time.Duration, fire func(seq uint64, c Color)) bool {
	s.CancelTurnTimer()
	if s.over || s.PlayerByColor(s.turn) == nil {
		return false
	}
	s.turnSeq++
	seq := s.turnSeq
	c := s.turn
	s.turnTimer = time.AfterFunc(d, func() { fire(seq, c) })
	return true
}

// CancelTurnTimer stops any pending turn timer and invalidates callbacks
// already in flight. Call with the session locked.
func (s *Session) CancelTurnTimer() {
	s.turnSeq++
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
}

// TurnTimerPending reports whether a turn timer is armed.
func (s *Session) TurnTimerPending() bool { return s.turnTimer != nil }

// TurnSeqValid reports whether a turn-timeout callback is still current.
func (s *Session) TurnSeqValid(seq uint64) bool { return s.turnTimer != nil && seq == s.turnSeq }

// ArmDeletionTimer schedules post-game deletion.
// Call with the session locked.
func (s *Session) ArmDeletionTimer(d time.Duration, fire func(seq uint64)) {
	s.CancelDeletionTimer()
	s.delSeq++
	seq := s.delSeq
	s.delTimer = time.AfterFunc(d, func() { fire(seq) })
}

// CancelDeletionTimer stops any pending deletion timer and invalidates
// callbacks already in flight. Call with the session locked.
func (s *Session) CancelDeletionTimer() {
	s.delSeq++
	if s.delTimer != nil {
		s.delTimer.Stop()
		s.delTimer = nil
	}
}

// DelSeqValid reports whether a deletion callback is still current.
func (s *Session) DelSeqValid(seq uint64) bool { return s.delTimer != nil && seq == s.delSeq }

// CancelTimers stops both timers unconditionally. Called on every deletion
// path. Call with the session locked.
func (s *Session) CancelTimers() {
	s.CancelTurnTimer()
	s.CancelDeletionTimer()
}
