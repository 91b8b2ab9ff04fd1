package domain

// IncomingCall is an unsolicited call prompt pushed by the server.
type IncomingCall struct {
	CallerName     string `json:"caller_name"`
	AppointmentID  int64  `json:"appointment_id"`
	ConsultationID int64  `json:"consultation_id"`
}
