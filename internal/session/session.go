package session

import (
	"encoding/json"
	"sync"
)

// Kind tags which logical consumer a replay session feeds. Exactly one kind
// is fixed at creation time.
type Kind int

const (
	JobDescription Kind = iota
	CandidateProfile
)

var kindNames = map[Kind]string{
	JobDescription:   "job_description",
	CandidateProfile: "candidate_profile",
}

var kindFromName = map[string]Kind{
	"job_description":   JobDescription,
	"candidate_profile": CandidateProfile,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := kindFromName[s]; ok {
		*k = v
	}
	return nil
}

// State tracks a session through its replay lifecycle.
type State int

const (
	Created State = iota
	Streaming
	Completed
	Failed
)

var stateNames = map[State]string{
	Created:   "created",
	Streaming: "streaming",
	Completed: "completed",
	Failed:    "failed",
}

var stateFromName = map[string]State{
	"created":   Created,
	"streaming": Streaming,
	"completed": Completed,
	"failed":    Failed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := stateFromName[n]; ok {
		*s = v
	}
	return nil
}

func (s State) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Message is one unit of replay pushed at the streaming endpoint. Seq is the
// 0-based position of the row in its transcript.
type Message struct {
	Seq     int
	Payload []byte
}

// Session is one isolated replay of a transcript file. Its state is mutated
// only by the owning broadcast runner; the streaming endpoint attaches and
// detaches as the single consumer of the delivery channel.
type Session struct {
	ID       string
	Kind     Kind
	Token    string // enrichment session token supplied by the caller
	Filename string

	mu       sync.Mutex
	state    State
	attached bool
	delivery chan Message
}

func New(id string, kind Kind, token, filename string, capacity int) *Session {
	if capacity < 0 {
		capacity = 0
	}
	return &Session{
		ID:       id,
		Kind:     kind,
		Token:    token,
		Filename: filename,
		delivery: make(chan Message, capacity),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next and reports whether the move is legal
// from the current state. Terminal states accept no further transitions.
func (s *Session) Transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	legal := false
	switch s.state {
	case Created:
		legal = next == Streaming || next == Failed
	case Streaming:
		legal = next == Completed || next == Failed
	}
	if legal {
		s.state = next
	}
	return legal
}

// Send queues one message for the consumer. It blocks when the delivery
// backlog is full. Only the owning runner may call Send.
func (s *Session) Send(m Message) {
	s.delivery <- m
}

// CloseDelivery is the sole end-of-stream signal. Called exactly once by the
// owning runner after the session reaches a terminal state.
func (s *Session) CloseDelivery() {
	close(s.delivery)
}

// Attach claims the delivery channel for a single consumer. It fails while
// another consumer holds the claim.
func (s *Session) Attach() (<-chan Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return nil, false
	}
	s.attached = true
	return s.delivery, true
}

// Detach releases the consumer claim so a later connection can resume
// draining wherever the backlog stands.
func (s *Session) Detach() {
	s.mu.Lock()
	s.attached = false
	s.mu.Unlock()
}
