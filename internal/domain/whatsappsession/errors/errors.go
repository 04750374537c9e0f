package errors

import (
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

var (
	ErrSessionNotFound   = pkgerrors.NewNotFoundError("session not found")
	ErrSessionIDRequired = pkgerrors.NewValidationError("sessionId is required")
	ErrInvalidSessionID  = pkgerrors.NewValidationError("sessionId may only contain letters, digits, '-' and '_'")
	ErrRecipientRequired = pkgerrors.NewValidationError("recipient is required")
	ErrMessageRequired   = pkgerrors.NewValidationError("message text is required")
	ErrInvalidWebhook    = pkgerrors.NewValidationError("invalid webhook payload")
	ErrTenantRequired    = pkgerrors.NewValidationError("tenant is required")
	ErrQRExhausted       = pkgerrors.NewServiceUnavailableError("unable to obtain QR code after exhausting all strategies")
	ErrTooManyQRRequests = pkgerrors.NewRateLimitError("too many QR requests for this session, try again later")
)
