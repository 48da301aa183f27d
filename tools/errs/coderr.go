package errs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// 错误码分段：4xxx 客户端，5xxx 服务端（HTTP status 由 HTTPStatus 映射）
const (
	CodeValidation   = 4000
	CodeUnauthorized = 4010
	CodeForbidden    = 4030
	CodeNotFound     = 4040
	CodeConflict     = 4090
	CodeInvalidOp    = 4220
	CodeRateLimited  = 4290
	CodeUnavailable  = 5030
)

// 预置错误值：业务层用 ErrXxx.WithDetail(...) / errors.Is(err, ErrXxx)
var (
	ErrValidation       = NewCodeError(CodeValidation, "validation failed")
	ErrUnauthorized     = NewCodeError(CodeUnauthorized, "unauthorized")
	ErrForbidden        = NewCodeError(CodeForbidden, "forbidden")
	ErrNotFound         = NewCodeError(CodeNotFound, "not found")
	ErrConflict         = NewCodeError(CodeConflict, "conflict")
	ErrInvalidOperation = NewCodeError(CodeInvalidOp, "invalid operation")
	ErrRateLimited      = NewCodeError(CodeRateLimited, "rate limited")
	ErrUnavailable      = NewCodeError(CodeUnavailable, "service unavailable")
)

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// WithDetail 返回带补充信息的副本，Code 不变（Is 仍然成立）
func (e *CodeError) WithDetail(detail string) *CodeError {
	d := detail
	if e.Detail != "" {
		d = e.Detail + ", " + detail
	}
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: d}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is 按 Code 判等，WithDetail 的副本与原值视为同一错误
func (e *CodeError) Is(err error) bool {
	var ce *CodeError
	if !errors.As(err, &ce) {
		return false
	}
	return ce != nil && ce.Code == e.Code
}

func (e *CodeError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidOp:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatusOf 任意 error -> HTTP status；非 CodeError 一律 503（下游故障按可重试处理）
func HTTPStatusOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.HTTPStatus()
	}
	return http.StatusServiceUnavailable
}

// Payload 任意 error -> 响应体；非 CodeError 统一包装成 Unavailable，不泄露内部细节
func Payload(err error) *CodeError {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return ErrUnavailable
}
