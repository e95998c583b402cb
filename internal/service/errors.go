package service

import (
	"errors"
	"fmt"
)

// 错误分类。HTTP 层通过 errors.Is 匹配分类决定状态码，
// 细分原因包裹分类，因此同时满足两者的 errors.Is。
var (
	ErrNotFound        = errors.New("not found")
	ErrGone            = errors.New("gone")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNoObject        = errors.New("no object provided")
	ErrValidation      = errors.New("invalid request")
	ErrOwnerNotFound   = errors.New("owner not found")
	ErrConflict        = errors.New("short code generation exhausted retries")
	ErrBlobStore       = errors.New("blob store failure")
	ErrInternal        = errors.New("internal error")
)

var (
	ErrDisabled             = fmt.Errorf("%w: not available", ErrForbidden)
	ErrIncorrectPassword    = fmt.Errorf("%w: incorrect password", ErrForbidden)
	ErrNotOwner             = fmt.Errorf("%w: not owner", ErrForbidden)
	ErrPasswordRequired     = fmt.Errorf("%w: password required", ErrUnauthorized)
	ErrExpired              = fmt.Errorf("%w: expired", ErrGone)
	ErrUnsupportedType      = fmt.Errorf("%w: unsupported file type", ErrValidation)
	ErrNotPasswordProtected = fmt.Errorf("%w: file is not password protected", ErrValidation)
)

// errSignedURL 是签名地址生成失败时返回给调用方的错误，不携带底层细节。
var errSignedURL = fmt.Errorf("%w: signed url generation failed", ErrInternal)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
