// Copyright 2021 PairMesh, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errcode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConnected     = New(KindNotConnected, NotConnected, errors.New("server is not connected"))
	ErrConnectionClosed = New(KindNetwork, ConnectionClosed, errors.New("connection closed"))
	ErrNoSecretKey      = New(KindConfig, NoSecretKey, errors.New("no secret key configured for the current character"))
	ErrMultiCharacter   = New(KindConfig, MultiCharacter, errors.New("multiple credentials match the current character"))
	ErrOAuthMisconfig   = New(KindConfig, OAuthMisconfigured, errors.New("oauth binding is incomplete"))
	ErrNoHubFound       = New(KindConfig, NoHubFound, errors.New("no hub endpoint answered"))
	ErrUnknownServer    = New(KindInvalid, UnknownServer, errors.New("unknown server index"))
	ErrUnknownPair      = New(KindInvalid, UnknownPair, errors.New("unknown pair"))
	ErrInvalidRecord    = New(KindInvalid, InvalidRecord, errors.New("invalid record"))
)

// Error carries the classification of a failure together with the cause.
type Error struct {
	Kind Kind
	Code ErrCode
	Err  error
}

func (e Error) Error() string {
	return e.Err.Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// Is matches two classified errors by code so that wrapped sentinels
// compare equal with errors.Is.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Kind == t.Kind
}

// New returns a classified error.
func New(kind Kind, code ErrCode, err error) error {
	return Error{Kind: kind, Code: code, Err: err}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, code ErrCode, format string, args ...interface{}) error {
	return New(kind, code, fmt.Errorf(format, args...))
}

// Network wraps err as a transient failure.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return New(KindNetwork, TransportFailure, err)
}

// KindOf classifies any error. Context cancellation is recognized even when
// it was not wrapped by this package; anything unknown is transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindNetwork
	}
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindNetwork
}

// CodeOf returns the code of a classified error or InternalError.
func CodeOf(err error) ErrCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// IsAuth reports whether err is a terminal credential rejection.
func IsAuth(err error) bool {
	return err != nil && KindOf(err) == KindAuth
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return err != nil && KindOf(err) == KindCancelled
}

// FromStatus classifies an HTTP-equivalent status reported by a server.
func FromStatus(status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	err := fmt.Errorf("%d: %s", status, msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(KindAuth, Unauthorized, err)
	case status == http.StatusTooManyRequests:
		return New(KindRateLimited, RateLimited, err)
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return New(KindProtocol, MalformedOperation, err)
	default:
		return New(KindNetwork, TransportFailure, err)
	}
}

// HTTPStatus maps a classified error to the status code used by the local
// query API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalid:
		return http.StatusBadRequest
	case KindNotConnected:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
