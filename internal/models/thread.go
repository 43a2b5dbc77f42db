package models

import "encoding/json"

// ThreadState is the tag of a ThreadRef.
type ThreadState int

const (
	// ThreadStateNone means no thread creation has been attempted yet.
	ThreadStateNone ThreadState = iota
	// ThreadStateCreated means the publication points at a real thread.
	ThreadStateCreated
	// ThreadStateDisabled means creation was attempted and failed permanently, or threading is off.
	ThreadStateDisabled
)

// ThreadRef is the thread attached to a publication: none, a real thread id, or disabled.
// The zero value is NoThread.
type ThreadRef struct {
	state ThreadState
	id    string
}

// NoThread returns a ThreadRef with no thread attempted.
func NoThread() ThreadRef { return ThreadRef{} }

// ThreadOf returns a ThreadRef holding a real thread id. An empty id yields NoThread.
func ThreadOf(id string) ThreadRef {
	if id == "" {
		return NoThread()
	}
	return ThreadRef{state: ThreadStateCreated, id: id}
}

// ThreadDisabled returns the terminal "do not retry" ThreadRef.
func ThreadDisabled() ThreadRef { return ThreadRef{state: ThreadStateDisabled} }

// State returns the tag.
func (t ThreadRef) State() ThreadState { return t.state }

// ID returns the thread id and true only when a real thread exists.
func (t ThreadRef) ID() (string, bool) {
	if t.state != ThreadStateCreated {
		return "", false
	}
	return t.id, true
}

// IsNone reports whether no thread has been attempted.
func (t ThreadRef) IsNone() bool { return t.state == ThreadStateNone }

// IsDisabled reports whether threading is disabled for the publication.
func (t ThreadRef) IsDisabled() bool { return t.state == ThreadStateDisabled }

// Columns returns the persisted form: nullable thread_id and the thread_disabled flag.
func (t ThreadRef) Columns() (threadID *string, disabled bool) {
	if id, ok := t.ID(); ok {
		return &id, false
	}
	return nil, t.state == ThreadStateDisabled
}

// ThreadFromColumns rebuilds a ThreadRef from its persisted columns. A real id wins over the flag.
func ThreadFromColumns(threadID *string, disabled bool) ThreadRef {
	if threadID != nil && *threadID != "" {
		return ThreadOf(*threadID)
	}
	if disabled {
		return ThreadDisabled()
	}
	return NoThread()
}

func (t ThreadRef) String() string {
	switch t.state {
	case ThreadStateCreated:
		return t.id
	case ThreadStateDisabled:
		return "disabled"
	default:
		return "none"
	}
}

type threadJSON struct {
	State string `json:"state"`
	ID    string `json:"id,omitempty"`
}

// MarshalJSON encodes the ref as {"state":"created","id":"..."}.
func (t ThreadRef) MarshalJSON() ([]byte, error) {
	out := threadJSON{State: "none"}
	switch t.state {
	case ThreadStateCreated:
		out.State, out.ID = "created", t.id
	case ThreadStateDisabled:
		out.State = "disabled"
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (t *ThreadRef) UnmarshalJSON(b []byte) error {
	var in threadJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.State {
	case "created":
		*t = ThreadOf(in.ID)
	case "disabled":
		*t = ThreadDisabled()
	default:
		*t = NoThread()
	}
	return nil
}
