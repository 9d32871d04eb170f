package service

import "errors"

var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrInvalidUsername  = errors.New("username must not be empty")
	ErrOutOfBounds      = errors.New("cell outside the board")
	ErrUserNotInChannel = errors.New("user not in channel")
	ErrInternalServer   = errors.New("internal server error")
)
