package beat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingVisitor struct {
	kinds []ActionKind
	err   error
}

func (v *recordingVisitor) VisitBeat(a BeatEvent) error {
	v.kinds = append(v.kinds, a.Kind())
	return v.err
}

func (v *recordingVisitor) VisitDownbeat(a DownbeatEvent) error {
	v.kinds = append(v.kinds, a.Kind())
	return v.err
}

func (v *recordingVisitor) VisitCustom(a CustomAction) error {
	v.kinds = append(v.kinds, a.Kind())
	if a.Callback != nil {
		a.Callback()
	}
	return v.err
}

func TestNewEventAction(t *testing.T) {
	t.Parallel()

	a, err := NewEventAction(Record{Type: Beat, StreamTime: 1.5})
	require.NoError(t, err)
	assert.Equal(t, KindBeat, a.Kind())

	a, err = NewEventAction(Record{Type: Downbeat})
	require.NoError(t, err)
	assert.Equal(t, KindDownbeat, a.Kind())

	_, err = NewEventAction(Record{Type: EventType(7)})
	assert.Error(t, err)
}

func TestVisit(t *testing.T) {
	t.Parallel()

	called := false
	v := &recordingVisitor{}
	for _, a := range []Action{
		BeatEvent{},
		DownbeatEvent{},
		CustomAction{Name: "flash", Callback: func() { called = true }},
	} {
		require.NoError(t, Visit(a, v))
	}
	assert.Equal(t, []ActionKind{KindBeat, KindDownbeat, KindCustom}, v.kinds)
	assert.True(t, called)

	assert.Error(t, Visit(nil, v))

	v.err = errors.New("sink down")
	assert.ErrorIs(t, Visit(BeatEvent{}, v), v.err)
}

func TestEventRecord(t *testing.T) {
	t.Parallel()

	r, ok := EventRecord(DownbeatEvent{Record: Record{StreamTime: 2}})
	require.True(t, ok)
	assert.Equal(t, 2.0, r.StreamTime)

	_, ok = EventRecord(CustomAction{})
	assert.False(t, ok)
}

func TestEventTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "beat", Beat.String())
	assert.Equal(t, "downbeat", Downbeat.String())
	assert.Equal(t, "EventType(3)", EventType(3).String())
	assert.True(t, Beat.Valid())
	assert.False(t, EventType(0).Valid())
}
