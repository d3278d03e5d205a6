package service

import "errors"

var (
	ErrForbidden          = errors.New("not allowed to act on this appointment")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)
