package model

import (
	"errors"
)

var (
	ErrScriptFailed         = errors.New("script failed")
	ErrInvalidRepeat        = errors.New("repeat count must be greater than 0")
	ErrInvocationInProgress = errors.New("invocation in progress")
	ErrNoScripts            = errors.New("no scripts configured")
)
