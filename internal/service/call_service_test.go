package service

import (
	"sync"
	"testing"
	"time"

	"github.com/medora-health/realtime/internal/domain"

	"github.com/stretchr/testify/require"
)

type fakeRinger struct {
	mu           sync.Mutex
	plays, stops int
}

func (r *fakeRinger) Play() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays++
}

func (r *fakeRinger) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *fakeRinger) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays, r.stops
}

func call(appt int64) domain.IncomingCall {
	return domain.IncomingCall{CallerName: "Dr. Adams", AppointmentID: appt, ConsultationID: appt * 10}
}

func TestShowIncomingCallSingleFlight(t *testing.T) {
	ringer := &fakeRinger{}
	s := NewCallService(ringer, nil)

	s.ShowIncomingCall(call(1))
	s.ShowIncomingCall(call(2))

	p := s.Pending()
	require.NotNil(t, p)
	require.Equal(t, int64(1), p.AppointmentID, "second prompt must not replace the first")
	plays, _ := ringer.counts()
	require.Equal(t, 1, plays)
}

func TestShowIncomingCallDedupesActiveCall(t *testing.T) {
	s := NewCallService(nil, nil)
	s.SetActiveCall(5)

	s.ShowIncomingCall(call(5))
	require.Nil(t, s.Pending(), "no prompt for the call the user is already on")

	s.ShowIncomingCall(call(6))
	require.NotNil(t, s.Pending(), "other appointments still prompt")
}

func TestClearActiveCallReArmsPrompt(t *testing.T) {
	s := NewCallService(nil, nil)
	s.SetActiveCall(5)
	s.ClearActiveCall(4) // wrong id, guard stays
	s.ShowIncomingCall(call(5))
	require.Nil(t, s.Pending())

	s.ClearActiveCall(5)
	s.ShowIncomingCall(call(5))
	require.NotNil(t, s.Pending())
}

func TestRingTimeoutAutoDismisses(t *testing.T) {
	ringer := &fakeRinger{}
	s := NewCallService(ringer, nil)
	s.SetRingTimeout(20 * time.Millisecond)

	s.ShowIncomingCall(call(1))
	require.NotNil(t, s.Pending())

	require.Eventually(t, func() bool { return s.Pending() == nil },
		time.Second, 5*time.Millisecond)
	_, stops := ringer.counts()
	require.Equal(t, 1, stops)
}

func TestAcceptSignalsNavigation(t *testing.T) {
	ringer := &fakeRinger{}
	var navigated []domain.IncomingCall
	s := NewCallService(ringer, func(c domain.IncomingCall) { navigated = append(navigated, c) })
	s.SetRingTimeout(time.Minute)

	s.ShowIncomingCall(call(3))
	s.Accept()

	require.Nil(t, s.Pending())
	require.Len(t, navigated, 1)
	require.Equal(t, int64(3), navigated[0].AppointmentID)
	require.Equal(t, int64(30), navigated[0].ConsultationID)
	_, stops := ringer.counts()
	require.Equal(t, 1, stops)

	// the cancelled timeout must not fire later
	time.Sleep(30 * time.Millisecond)
	require.Nil(t, s.Pending())
}

func TestDismissAllowsNextPrompt(t *testing.T) {
	s := NewCallService(nil, nil)

	s.ShowIncomingCall(call(1))
	s.Dismiss()
	require.Nil(t, s.Pending())

	s.ShowIncomingCall(call(2))
	p := s.Pending()
	require.NotNil(t, p)
	require.Equal(t, int64(2), p.AppointmentID)
}
