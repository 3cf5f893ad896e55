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

package cmdutil

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Example is one usage line shown in the help of a command.
type Example struct {
	Example string
	Comment string
}

// Examples renders aligned usage lines.
type Examples []Example

// String lines up the comments of all examples in one column.
func (es Examples) String() string {
	width := 0
	for _, e := range es {
		if len(e.Example) > width {
			width = len(e.Example)
		}
	}

	lines := make([]string, 0, len(es))
	for _, e := range es {
		pad := strings.Repeat(" ", width-len(e.Example)+3)
		lines = append(lines, "  "+Highlight(e.Example)+pad+"# "+e.Comment)
	}
	return strings.Join(lines, "\n")
}

// Run executes cmd and exits with a non-zero code when it fails.
func Run(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		zap.L().Error("Run command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

// SignalContext returns a context cancelled on the first termination
// signal.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sc)
		select {
		case sg := <-sc:
			zap.L().Info("Got signal and prepare to terminate", zap.Stringer("signal", sg))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

var (
	bold      = color.New(color.Bold)
	underline = color.New(color.Bold, color.Underline)
	highlight = color.New(color.Bold, color.FgHiCyan)
)

// Bold renders bold terminal text.
func Bold(f string, args ...interface{}) string { return bold.Sprintf(f, args...) }

// Underline renders bold underlined terminal text.
func Underline(f string, args ...interface{}) string { return underline.Sprintf(f, args...) }

// Highlight renders the command samples of Examples.
func Highlight(f string, args ...interface{}) string { return highlight.Sprintf(f, args...) }
