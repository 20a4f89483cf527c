package errors

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrReferenceNotFound indicates the gateway object was not created by this service
	ErrReferenceNotFound = errors.New("gateway reference not found")

	// ErrOwnerUnverified indicates gateway metadata does not match the stored reference
	ErrOwnerUnverified = errors.New("gateway object owner could not be verified")

	// ErrInvalidPaymentSignature indicates a direct payment confirmation failed signature checks
	ErrInvalidPaymentSignature = errors.New("invalid payment signature")

	// ErrTerminalSubscription indicates the subscription no longer accepts transitions
	ErrTerminalSubscription = errors.New("subscription is in a terminal state")
)
