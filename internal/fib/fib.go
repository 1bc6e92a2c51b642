package fib

import (
	"errors"
	"fmt"
)

// MaxN là n lớn nhất mà fib(n) còn vừa int64: fib(92) = 7540113804746346429.
// fib(93) đã tràn.
const MaxN = 92

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOverflow        = errors.New("overflow")
)

type ErrorType string

const (
	InvalidArgument ErrorType = "INVALID_ARGUMENT"
	Overflow        ErrorType = "OVERFLOW"
)

// Error is returned by Fib for inputs outside [0, MaxN].
type Error struct {
	Type    ErrorType
	Message string
	N       int
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fib(%d): %s (type: %s)", e.N, e.Message, e.Type)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fib returns the n-th Fibonacci number, fib(0) = 0, fib(1) = 1.
// Negative n is rejected with ErrInvalidArgument and n > MaxN with ErrOverflow.
func Fib(n int) (int64, error) {
	if n < 0 {
		return 0, &Error{Type: InvalidArgument, Message: "n must be non-negative", N: n, Cause: ErrInvalidArgument}
	}
	if n > MaxN {
		return 0, &Error{Type: Overflow, Message: fmt.Sprintf("result does not fit in int64 for n > %d", MaxN), N: n, Cause: ErrOverflow}
	}
	return Naive(int64(n)), nil
}

// Naive là kernel của benchmark: đệ quy kép, không cache.
// Không kiểm tra đầu vào; với n < 2 trả về chính n.
func Naive(n int64) int64 {
	if n < 2 {
		return n
	}
	return Naive(n-1) + Naive(n-2)
}
