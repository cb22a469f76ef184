// Copyright 2024 The arcbuf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aberr

import (
	"fmt"
	"io"
)

const (
	// Ok is not an error.  It is never wrapped in an Error value.
	Ok uint16 = 0

	// Group 1: internal errors
	ErrStart       uint16 = 20100
	ErrInternal    uint16 = 20101
	ErrNYI         uint16 = 20102
	ErrOOM         uint16 = 20103
	ErrUnsupported uint16 = 20104

	// Group 2: buffer usage errors
	ErrIndexOutOfRange uint16 = 20200
	ErrBufferClosed    uint16 = 20201
	ErrReadOnly        uint16 = 20202
	ErrNotOwned        uint16 = 20203
	ErrSendConsumed    uint16 = 20204

	// Group 3: composition, allocation and configuration
	ErrInvalidComposition uint16 = 20300
	ErrAllocationFailure  uint16 = 20301
	ErrBadConfig          uint16 = 20302
	ErrInvalidInput       uint16 = 20303
	ErrInvalidState       uint16 = 20304

	// ErrEnd, the max value of the code space.
	ErrEnd uint16 = 65535
)

type errorMsgItem struct {
	errorMsgOrFormat string
}

var errorMsgRefer = map[uint16]errorMsgItem{
	// Group 1: internal errors
	ErrStart:       {"internal error: error code start"},
	ErrInternal:    {"internal error: %s"},
	ErrNYI:         {"%s is not yet implemented"},
	ErrOOM:         {"error: out of memory"},
	ErrUnsupported: {"unsupported: %s"},

	// Group 2: buffer usage errors
	ErrIndexOutOfRange: {"index %d out of bounds: [read 0 to %d, write 0 to %d]"},
	ErrBufferClosed:    {"buffer is closed, sent, or otherwise inaccessible"},
	ErrReadOnly:        {"buffer is read-only"},
	ErrNotOwned:        {"buffer is not owned: %s requires exclusive ownership"},
	ErrSendConsumed:    {"send has already been received"},

	// Group 3: composition, allocation and configuration
	ErrInvalidComposition: {"invalid composition: %s"},
	ErrAllocationFailure:  {"allocation of %d bytes failed: %s"},
	ErrBadConfig:          {"invalid configuration: %s"},
	ErrInvalidInput:       {"invalid input: %s"},
	ErrInvalidState:       {"invalid state: %s"},
}

func newError(code uint16, args ...any) *Error {
	var err *Error
	item, has := errorMsgRefer[code]
	if !has {
		panic(fmt.Errorf("aberr: missing error item for code %d", code))
	}
	if len(args) == 0 {
		err = &Error{
			code:    code,
			message: item.errorMsgOrFormat,
		}
	} else {
		err = &Error{
			code:    code,
			message: fmt.Sprintf(item.errorMsgOrFormat, args...),
		}
	}
	return err
}

// Error is the only error type produced by this library.  It carries a
// stable numeric code so callers can branch on the kind without string
// matching.
type Error struct {
	code    uint16
	message string
	detail  string
}

func (e *Error) Error() string {
	if e.detail == "" {
		return e.message
	}
	return fmt.Sprintf("%s: %s", e.message, e.detail)
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

func (e *Error) Detail() string {
	return e.detail
}

// WithDetail returns a copy of the error annotated with free-form
// detail, keeping the original code.
func (e *Error) WithDetail(detail string) *Error {
	return &Error{
		code:    e.code,
		message: e.message,
		detail:  detail,
	}
}

// IsCode reports whether err is an *Error with the given code.  A nil
// error matches only Ok.
func IsCode(err error, rc uint16) bool {
	if err == nil {
		return rc == Ok
	}
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.code == rc
}

// DowncastError returns err as *Error, wrapping foreign errors as
// internal.
func DowncastError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return newError(ErrInternal, fmt.Sprintf("downcast error failed: %v", err))
}

// ConvertPanicError converts a recovered panic value to an Error.
func ConvertPanicError(v interface{}) *Error {
	if e, ok := v.(*Error); ok {
		return e
	}
	return newError(ErrInternal, fmt.Sprintf("panic %v", v))
}

// ConvertGoError converts a go error into a library error.  Note here we
// must return error, because nil error is the same as nil *Error -- Go
// strangeness.
func ConvertGoError(err error) error {
	if err == nil {
		return err
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return newError(ErrInternal, fmt.Sprintf("unexpected EOF: %v", err))
	}
	return newError(ErrInternal, fmt.Sprintf("convert go error: %v", err))
}

func NewInternalError(msg string, args ...any) *Error {
	return newError(ErrInternal, fmt.Sprintf(msg, args...))
}

func NewNYI(msg string, args ...any) *Error {
	return newError(ErrNYI, fmt.Sprintf(msg, args...))
}

func NewOOM() *Error {
	return newError(ErrOOM)
}

func NewUnsupported(msg string, args ...any) *Error {
	return newError(ErrUnsupported, fmt.Sprintf(msg, args...))
}

// NewIndexOutOfRange reports an accessor index that violates the
// buffer's cursor or capacity bounds.  readLimit and writeLimit are the
// largest offsets reads and writes may touch.
func NewIndexOutOfRange(index, readLimit, writeLimit int) *Error {
	return newError(ErrIndexOutOfRange, index, readLimit, writeLimit)
}

func NewBufferClosed() *Error {
	return newError(ErrBufferClosed)
}

func NewReadOnly() *Error {
	return newError(ErrReadOnly)
}

func NewNotOwned(op string) *Error {
	return newError(ErrNotOwned, op)
}

func NewSendConsumed() *Error {
	return newError(ErrSendConsumed)
}

func NewInvalidComposition(msg string, args ...any) *Error {
	return newError(ErrInvalidComposition, fmt.Sprintf(msg, args...))
}

func NewAllocationFailure(size int, cause string) *Error {
	return newError(ErrAllocationFailure, size, cause)
}

func NewBadConfig(msg string, args ...any) *Error {
	return newError(ErrBadConfig, fmt.Sprintf(msg, args...))
}

func NewInvalidInput(msg string, args ...any) *Error {
	return newError(ErrInvalidInput, fmt.Sprintf(msg, args...))
}

func NewInvalidState(msg string, args ...any) *Error {
	return newError(ErrInvalidState, fmt.Sprintf(msg, args...))
}
