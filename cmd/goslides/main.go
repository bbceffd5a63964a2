/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"goslides/internal/config"
	"goslides/internal/crash"
	applog "goslides/internal/log"
	"goslides/internal/store"
	"goslides/internal/version"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "GoSlides, collaborative slide decks")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  goslides version|-v|--version              Show version")
	fmt.Fprintln(w, "  goslides whoami [<name>]                    Show or set your display name")
	fmt.Fprintln(w, "  goslides create [<title>]                   Create a presentation and print its ID")
	fmt.Fprintln(w, "  goslides list                               List all presentations")
	fmt.Fprintln(w, "  goslides join <id>                          Join a presentation (as viewer)")
	fmt.Fprintln(w, "  goslides show <id>                          Print members and slides")
	fmt.Fprintln(w, "  goslides title <id> <title>                 Rename (creator only)")
	fmt.Fprintln(w, "  goslides add-slide <id>                     Append a slide (creator only)")
	fmt.Fprintln(w, "  goslides remove-slide <id> <n>              Remove slide n (creator only)")
	fmt.Fprintln(w, "  goslides role <id> <user> [editor|viewer]   Set or toggle a member's role (creator only)")
	fmt.Fprintln(w, "  goslides add <id> <n> <kind> [<value>]      Add text|rect|circle|arrow|image to slide n")
	fmt.Fprintln(w, "  goslides delete <id>                        Delete a presentation (creator only)")
	fmt.Fprintln(w, "  goslides export <id> [<out>]                Export to PDF")
	fmt.Fprintln(w, "  goslides png <id> <dir>                     Export one PNG per slide")
	fmt.Fprintln(w, "  goslides present <id>                       Step through slides (n=next, p=prev, q=quit)")
	fmt.Fprintln(w, "  goslides watch <id>                         Print changes made by other instances")
	fmt.Fprintln(w, "  goslides ui [<id>]                          Launch desktop UI (build with -tags fyne for full UI)")
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, dsn, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")

	args := os.Args[1:]
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(os.Stdout)
		return
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println("GoSlides")
		fmt.Println(version.String())
		return
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	}

	ctx := context.Background()
	kv, err := store.Open(ctx, cfg.Storage, dsn)
	if err != nil {
		l.Error("open store failed", slog.String("backend", cfg.Storage.Backend), slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	st := store.New(kv)

	crashDir := ""
	if dir, err := config.DataDir(); err == nil {
		crashDir = filepath.Join(dir, "crash")
	}
	code := run(ctx, &cli{cfg: cfg, st: st, in: os.Stdin, out: os.Stdout, log: l, saveConfig: saveIdentityConfig}, args, crashDir)
	if err := kv.Close(); err != nil {
		l.Warn("close store failed", slog.Any("err", err))
	}
	os.Exit(code)
}

// run executes one command with crash recovery and maps errors to exit codes.
func run(ctx context.Context, c *cli, args []string, crashDir string) int {
	defer crash.Recover(crashDir, c.st)
	err := c.dispatch(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(c.out, err)
		usage(c.out)
		return 2
	default:
		c.log.Error("command failed", slog.String("cmd", args[0]), slog.Any("err", err))
		fmt.Fprintln(c.out, "Error:", err)
		return 1
	}
}

// saveIdentityConfig writes the config file and leaves the keyring untouched.
func saveIdentityConfig(cfg config.AppConfig) error { return config.Save(cfg, "") }
