package repair

import "sync"

// Session is the per-run context threaded through the pipeline: the receipt
// number counter and the aggregate outcome counters. One session exists per
// run; nothing about it is ambient process state.
type Session struct {
	mu sync.Mutex

	lastNumber int

	sent       int
	fiscalized int
	rejected   int
	unresolved []string
}

// NewSession starts a session from the most recent receipt number known to
// the POS store. The first number handed out is lastNumber+1.
func NewSession(lastNumber int) *Session {
	return &Session{lastNumber: lastNumber}
}

// NextNumber consumes and returns the next receipt number. Numbers are never
// handed out twice, even when the request they were assigned to fails.
func (s *Session) NextNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNumber++
	return s.lastNumber
}

// LastNumber returns the highest number consumed so far.
func (s *Session) LastNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastNumber
}

func (s *Session) recordSent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
}

func (s *Session) recordFiscalized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fiscalized++
}

func (s *Session) recordRejected(transactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
	if transactionID != "" {
		s.unresolved = append(s.unresolved, transactionID)
	}
}

// Summary is the final outcome of a run.
type Summary struct {
	Sent       int
	Fiscalized int
	Rejected   int
	// Unresolved lists transaction ids of synthesized requests that were
	// rejected and still need a VAT-number correction.
	Unresolved []string
}

// Summary snapshots the aggregate counters.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Sent:       s.sent,
		Fiscalized: s.fiscalized,
		Rejected:   s.rejected,
		Unresolved: append([]string(nil), s.unresolved...),
	}
}
