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

package entry

import (
	"fmt"
	"path/filepath"

	"github.com/pairmesh/pairsync/constant"
	"github.com/pairmesh/pairsync/i18n"
	"github.com/pairmesh/pairsync/internal/backoff"
	"github.com/pairmesh/pairsync/internal/cmdutil"
	"github.com/pairmesh/pairsync/internal/hubconn"
	"github.com/pairmesh/pairsync/internal/logutil"
	"github.com/pairmesh/pairsync/node/auth"
	"github.com/pairmesh/pairsync/node/auth/tokenstore"
	"github.com/pairmesh/pairsync/node/config"
	"github.com/pairmesh/pairsync/node/controller"
	"github.com/pairmesh/pairsync/node/hub"
	"github.com/pairmesh/pairsync/node/localapi"
	"github.com/pairmesh/pairsync/node/notify"
	"github.com/pairmesh/pairsync/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Run starts the pairsync daemon.
func Run() {
	var (
		cfgPath  string
		listen   string
		examples = cmdutil.Examples{
			{
				Example: "pairsync -c /path/to/config.yaml",
				Comment: "Connect to every server of the configuration",
			},
			{
				Example: "pairsync -c /path/to/config.yaml --listen 127.0.0.1:9000",
				Comment: "Serve the local API on a customized address",
			},
			{
				Example: "pairsync --version",
				Comment: "Print the version of pairsync",
			},
		}
	)

	rootCmd := &cobra.Command{
		Use: fmt.Sprintf("pairsync -c %s [flags]", cmdutil.Underline("<CONFIG>")),
		Long: fmt.Sprintf(`%[1]s keeps the pairing state of a character in sync with one or more
sync servers. Every server is connected independently and the merged state is
exposed by a local HTTP API.

- The configuration file '-c %[2]s' is required.
- The local API listens on '%[3]s' unless overridden by '--listen'.
- Environment variable '%[4]s' is used to specify the verbosity of debug log.`,
			cmdutil.Bold("pairsync"),
			cmdutil.Underline("<CONFIG>"),
			constant.DefaultLocalAPIAddress,
			cmdutil.Underline(constant.EnvLogLevel)),
		Example:       examples.String(),
		Version:       version.NewVersion().FullInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRun: func(cmd *cobra.Command, args []string) {
			logutil.InitLogger()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return errors.New("please use `-c <CONFIG>` to specify the configuration file")
			}
			cfg, err := config.FromPath(cfgPath)
			if err != nil {
				return errors.WithMessage(err, "load configuration")
			}
			if listen != "" {
				cfg.LocalAPI.Listen = listen
			}
			zap.L().Info("Load configuration finished", zap.String("path", cfgPath), zap.Int("servers", cfg.ServerCount()))
			return serve(cfg)
		},
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "The path of the configuration file")
	rootCmd.Flags().StringVarP(&listen, "listen", "l", "", "The address of the local API")

	cmdutil.Run(rootCmd)
}

func serve(cfg *config.Config) error {
	if err := i18n.SetLocale(cfg.Locale); err != nil {
		zap.L().Warn("Unsupported locale", zap.String("locale", cfg.Locale), zap.Strings("supported", i18n.Locales()))
	}

	retry, err := backoff.New(cfg.Retry.Mode, cfg.Retry.Min, cfg.Retry.Max)
	if err != nil {
		return err
	}

	store := tokenstore.NewMemory()
	if cfg.TokenCacheDir != "" {
		store, err = tokenstore.OpenLedis(filepath.Join(cfg.TokenCacheDir, "tokens"))
		if err != nil {
			return errors.WithMessage(err, "open token cache")
		}
	}
	defer store.Close()

	factory := hubconn.NewFactory()
	defer factory.Close()

	bus := notify.NewBus()
	ctl := controller.New(hub.Options{
		Config:               cfg,
		Factory:              factory,
		Tokens:               auth.NewProvider(cfg, store, cfg.MachineID),
		Bus:                  bus,
		Retry:                retry,
		MaxTransportAttempts: cfg.Retry.MaxTransportAttempts,
		HealthInterval:       cfg.HealthInterval,
		HeartbeatInterval:    cfg.HeartbeatInterval,
	})
	defer ctl.Close()

	ctx, cancel := cmdutil.SignalContext()
	defer cancel()

	go logNotifications(bus)
	ctl.AutoLogin()

	return localapi.Serve(ctx, cfg.LocalAPI.Listen, ctl)
}

func logNotifications(bus *notify.Bus) {
	events, _ := bus.Subscribe(256)
	for e := range events {
		if e.Type == notify.TypeStateChanged || e.Type == notify.TypeServerMessage || e.Type == notify.TypeVersionAdvisory {
			zap.L().Info("Notification", zap.Stringer("type", e.Type), zap.Stringer("server", e.Server), zap.Any("data", e.Data))
		} else if logutil.IsEnablePairs() {
			zap.L().Debug("Notification", zap.Stringer("type", e.Type), zap.Stringer("server", e.Server), zap.String("uid", e.UID), zap.String("gid", e.GID))
		}
	}
}
