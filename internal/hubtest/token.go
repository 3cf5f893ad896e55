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

package hubtest

import (
	"net/http"
	"strings"
	"time"

	stdjwt "github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound represents a request without a token
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized represents a token which doesn't verify
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired represents the token is expired
	ErrTokenExpired = errors.New("token expired")
)

// ExtractToken extract the token from the raw Authorization value
func ExtractToken(raw string) (string, string, error) {
	fields := strings.Split(raw, " ")
	if len(fields) == 2 {
		return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), nil
	}
	return "", "", ErrNotFound
}

func createToken(secret []byte, uid string, ttl time.Duration) (string, error) {
	claims := stdjwt.StandardClaims{
		Subject:  uid,
		IssuedAt: time.Now().Unix(),
	}
	if ttl > 0 {
		claims.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	return stdjwt.NewWithClaims(stdjwt.SigningMethodHS256, claims).SignedString(secret)
}

// verifyToken parses and validates a token and returns its subject.
func verifyToken(token string, secret []byte) (string, error) {
	claims := &stdjwt.StandardClaims{}
	_, err := stdjwt.ParseWithClaims(token, claims, func(tk *stdjwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*stdjwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return secret, nil
	})
	if err == nil {
		return claims.Subject, nil
	}
	if isTokenExpiredError(err) {
		return "", ErrTokenExpired
	}
	return "", ErrUnauthorized
}

func isTokenExpiredError(err error) bool {
	e, ok := err.(*stdjwt.ValidationError)
	return ok && e.Errors&stdjwt.ValidationErrorExpired != 0
}

func tokenFromRequest(r *http.Request) (string, error) {
	_, token, err := ExtractToken(r.Header.Get("Authorization"))
	return token, err
}
