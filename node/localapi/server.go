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

package localapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"
	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/errcode"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/controller"
	"github.com/pairmesh/pairsync/node/metrics"
	"github.com/pairmesh/pairsync/protocol"
	"github.com/pingcap/fn"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var setupOnce sync.Once

type failure struct {
	Code  errcode.ErrCode `json:"code"`
	Error string          `json:"error"`
}

// setupMiddleware installs the request logger and the error encoder. fn
// keeps them globally.
func setupMiddleware() {
	fn.Plugin(func(ctx context.Context, request *http.Request) (context.Context, error) {
		if logutil.IsEnableHub() {
			zap.L().Debug("Incoming request", zap.Stringer("url", request.URL))
		}
		return context.WithValue(ctx, constant.KeyRawRequest, request), nil
	})

	fn.SetErrorEncoder(func(ctx context.Context, err error) interface{} {
		if request, ok := ctx.Value(constant.KeyRawRequest).(*http.Request); ok {
			zap.L().Warn("Request failure",
				zap.String("api", request.RequestURI),
				zap.String("method", request.Method),
				zap.Error(err))
		}
		return &failure{
			Code:  errcode.CodeOf(err),
			Error: err.Error(),
		}
	})
}

// Handler returns the handler serving the local API of ctl.
func Handler(ctl *controller.Controller) http.Handler {
	setupOnce.Do(setupMiddleware)
	s := &server{ctl: ctl}

	router := mux.NewRouter()
	router.Handle("/api/v1/status", fn.Wrap(s.Status)).Methods(http.MethodGet)
	router.Handle("/api/v1/servers", fn.Wrap(s.Servers)).Methods(http.MethodGet)
	router.Handle("/api/v1/server/{index}", fn.Wrap(s.Server)).Methods(http.MethodGet)
	router.Handle("/api/v1/server/{index}/pairs", fn.Wrap(s.Pairs)).Methods(http.MethodGet)
	router.Handle("/api/v1/connect", fn.Wrap(s.Connect)).Methods(http.MethodPost)
	router.Handle("/api/v1/disconnect", fn.Wrap(s.Disconnect)).Methods(http.MethodPost)
	router.Handle("/api/v1/server/{index}/pause", fn.Wrap(s.Pause)).Methods(http.MethodPost)
	router.Handle("/api/v1/server/{index}/fullpause", fn.Wrap(s.FullPause)).Methods(http.MethodPost)
	router.Handle("/api/v1/server/{index}/permissions/bulk", fn.Wrap(s.BulkPermissions)).Methods(http.MethodPost)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return gziphandler.GzipHandler(router)
}

// Serve serves the local API on addr until ctx is done.
func Serve(ctx context.Context, addr string, ctl *controller.Controller) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(ctl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	zap.L().Info("Serve the local API", zap.String("address", addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type server struct {
	ctl *controller.Controller
}

// withStatus attaches the status code matching err.
func withStatus(err error) error {
	if err == nil {
		return nil
	}
	return fn.ErrorWithStatusCode(err, errcode.HTTPStatus(err))
}

func serverIndex(r *http.Request) (protocol.ServerIndex, error) {
	raw := mux.Vars(r)["index"]
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, withStatus(errcode.Newf(errcode.KindInvalid, errcode.InvalidRecord, "invalid server index %q", raw))
	}
	return protocol.ServerIndex(n), nil
}
