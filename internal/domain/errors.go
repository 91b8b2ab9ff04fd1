package domain

import "errors"

var (
	ErrNoCredentials    = errors.New("no access credentials")
	ErrMessageNotFound  = errors.New("message not found")
	ErrPendingMessage   = errors.New("message not yet confirmed by server")
	ErrSendRejected     = errors.New("message rejected by server")
	ErrNoMorePages      = errors.New("no more pages")
	ErrLoadInFlight     = errors.New("page load already in flight")
	ErrTokenNotFound    = errors.New("token not found")
	ErrAttachmentMissed = errors.New("attachment not found")
)
