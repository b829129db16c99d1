package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrUserNotFound   = goerr.New("user not found")
	ErrTaskNotFound   = goerr.New("task not found")
	ErrTaskNotPending = goerr.New("task is not pending")
	ErrUnknownChannel = goerr.New("unknown channel")
)
