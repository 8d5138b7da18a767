package domain

import "errors"

var (
	// ErrDateUnavailable: the (tenant, date) slot is held by a PENDING or CONFIRMED booking.
	ErrDateUnavailable = errors.New("date_unavailable")
	// ErrSignatureInvalid: webhook authenticity could not be established.
	ErrSignatureInvalid = errors.New("signature_invalid")
	// ErrCorrelationNotFound: a payment succeeded but no matching PENDING booking exists.
	ErrCorrelationNotFound = errors.New("correlation_not_found")
	// ErrTransientStorage: the store failed mid-operation; everything was rolled back.
	ErrTransientStorage = errors.New("transient_storage_failure")

	ErrMalformedCorrelation = errors.New("malformed_correlation")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrBookingNotFound      = errors.New("booking_not_found")
	ErrTenantNotFound       = errors.New("tenant_not_found")
	ErrInvalidEventDate     = errors.New("invalid_event_date")
	ErrLeadTime             = errors.New("event_date_inside_lead_time")
)
