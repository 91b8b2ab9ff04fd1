package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/medora-health/realtime/internal/domain"
	"github.com/medora-health/realtime/internal/transport/ws"
)

// Ringer plays the incoming-call ringtone while a prompt is pending.
type Ringer interface {
	Play()
	Stop()
}

// Navigator receives the navigation intent when a call is accepted.
type Navigator func(call domain.IncomingCall)

// CallService surfaces at most one unsolicited call prompt at a time and
// suppresses prompts for the call the user is already on. Process-wide:
// created at application start, torn down at shutdown.
type CallService struct {
	ringer   Ringer
	navigate Navigator

	mu          sync.Mutex
	pending     *domain.IncomingCall
	activeAppt  int64 // 0 = none; dedupe input, independent of the prompt
	ringTimeout time.Duration
	timer       *time.Timer
	gen         int
}

func NewCallService(ringer Ringer, navigate Navigator) *CallService {
	return &CallService{
		ringer:      ringer,
		navigate:    navigate,
		ringTimeout: 45 * time.Second,
	}
}

func (s *CallService) SetRingTimeout(d time.Duration) {
	if d > 0 {
		s.ringTimeout = d
	}
}

// Bind subscribes to incoming-call push notifications.
func (s *CallService) Bind(c *ws.Client) {
	c.On(ws.TypeNotification, func(f ws.Frame) {
		var n callNotification
		if err := ws.DecodeData(f, &n); err != nil {
			return
		}
		if n.Kind != "incoming_call" {
			return
		}
		s.ShowIncomingCall(n.IncomingCall)
	})
}

type callNotification struct {
	Kind string `json:"kind"`
	domain.IncomingCall
}

// ShowIncomingCall arms the prompt. No-op while another prompt is pending or
// while the user is already on that appointment's call. The prompt
// auto-dismisses after the ring timeout as if declined.
func (s *CallService) ShowIncomingCall(call domain.IncomingCall) {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return
	}
	if s.activeAppt != 0 && call.AppointmentID == s.activeAppt {
		s.mu.Unlock()
		slog.Debug("call: duplicate prompt for active call", "appointment", call.AppointmentID)
		return
	}
	c := call
	s.pending = &c
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.ringTimeout, func() { s.timeout(gen) })
	s.mu.Unlock()

	slog.Info("call: incoming", "appointment", call.AppointmentID, "caller", call.CallerName)
	if s.ringer != nil {
		s.ringer.Play()
	}
}

// Accept clears the prompt and signals the navigation intent.
func (s *CallService) Accept() {
	call, ok := s.clear()
	if !ok {
		return
	}
	slog.Info("call: accepted", "appointment", call.AppointmentID)
	if s.navigate != nil {
		s.navigate(call)
	}
}

// Dismiss clears the prompt: explicit decline and timeout expiry both land
// here.
func (s *CallService) Dismiss() {
	if call, ok := s.clear(); ok {
		slog.Info("call: dismissed", "appointment", call.AppointmentID)
	}
}

// SetActiveCall records the appointment the user actually joined; duplicate
// pushes for it will not prompt again.
func (s *CallService) SetActiveCall(appointmentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeAppt = appointmentID
}

// ClearActiveCall resets the dedupe guard when that call is left.
func (s *CallService) ClearActiveCall(appointmentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeAppt == appointmentID {
		s.activeAppt = 0
	}
}

// Pending returns the currently shown prompt, if any.
func (s *CallService) Pending() *domain.IncomingCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	c := *s.pending
	return &c
}

func (s *CallService) timeout(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	call := *s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	slog.Info("call: ring timeout", "appointment", call.AppointmentID)
	if s.ringer != nil {
		s.ringer.Stop()
	}
}

func (s *CallService) clear() (domain.IncomingCall, bool) {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return domain.IncomingCall{}, false
	}
	call := *s.pending
	s.pending = nil
	s.gen++ // invalidate the armed timeout
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	if s.ringer != nil {
		s.ringer.Stop()
	}
	return call, true
}
