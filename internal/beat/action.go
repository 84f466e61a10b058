package beat

import "fmt"

// Action is the tagged variant delivered to sinks. The concrete types are
// BeatEvent, DownbeatEvent and CustomAction; the set is closed by the
// unexported isAction method.
type Action interface {
	Kind() ActionKind
	isAction()
}

// ActionKind names an Action variant for logs and storage.
type ActionKind string

const (
	KindBeat     ActionKind = "beat_event"
	KindDownbeat ActionKind = "downbeat_event"
	KindCustom   ActionKind = "custom_action"
)

// BeatEvent carries the record for an accepted beat.
type BeatEvent struct{ Record Record }

// DownbeatEvent carries the record for an accepted downbeat.
type DownbeatEvent struct{ Record Record }

// CustomAction runs an arbitrary callback on the sink's worker.
type CustomAction struct {
	Name     string
	Callback func()
}

func (BeatEvent) Kind() ActionKind     { return KindBeat }
func (DownbeatEvent) Kind() ActionKind { return KindDownbeat }
func (CustomAction) Kind() ActionKind  { return KindCustom }

func (BeatEvent) isAction()     {}
func (DownbeatEvent) isAction() {}
func (CustomAction) isAction()  {}

// NewEventAction wraps a record in the variant matching its event type.
func NewEventAction(r Record) (Action, error) {
	switch r.Type {
	case Beat:
		return BeatEvent{Record: r}, nil
	case Downbeat:
		return DownbeatEvent{Record: r}, nil
	default:
		return nil, fmt.Errorf("no action for event type %v", r.Type)
	}
}

// Visitor handles each Action variant. All three methods must be
// implemented, so adding a variant breaks every visitor at compile time.
type Visitor interface {
	VisitBeat(BeatEvent) error
	VisitDownbeat(DownbeatEvent) error
	VisitCustom(CustomAction) error
}

// Visit dispatches a to the matching Visitor method.
func Visit(a Action, v Visitor) error {
	switch a := a.(type) {
	case BeatEvent:
		return v.VisitBeat(a)
	case DownbeatEvent:
		return v.VisitDownbeat(a)
	case CustomAction:
		return v.VisitCustom(a)
	case nil:
		return fmt.Errorf("nil action")
	default:
		return fmt.Errorf("unknown action %T", a)
	}
}

// EventRecord returns the record carried by an event variant.
func EventRecord(a Action) (Record, bool) {
	switch a := a.(type) {
	case BeatEvent:
		return a.Record, true
	case DownbeatEvent:
		return a.Record, true
	default:
		return Record{}, false
	}
}
