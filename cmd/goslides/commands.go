/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"goslides/internal/config"
	"goslides/internal/export"
	"goslides/internal/scene"
	"goslides/internal/shell"
	"goslides/internal/store"
	"goslides/internal/ui"
)

var errUsage = errors.New("invalid arguments")

func usageErr(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
}

type cli struct {
	cfg        config.AppConfig
	st         *store.Store
	in         io.Reader
	out        io.Writer
	log        *slog.Logger
	saveConfig func(config.AppConfig) error
}

func (c *cli) identity() (string, error) {
	if who := strings.TrimSpace(c.cfg.General.Identity); who != "" {
		return who, nil
	}
	return "", fmt.Errorf("no display name set: run 'goslides whoami <name>' or set %s", config.EnvIdentity)
}

func (c *cli) dispatch(ctx context.Context, args []string) error {
	need := func(n int, what string) error {
		if len(args) < n+1 {
			return usageErr("%s requires %s", args[0], what)
		}
		return nil
	}
	switch args[0] {
	case "whoami":
		return c.whoami(args[1:])
	case "create":
		return c.create(ctx, strings.Join(args[1:], " "))
	case "list":
		return c.list(ctx)
	case "join":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		return c.join(ctx, args[1])
	case "show":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		return c.show(ctx, args[1])
	case "title":
		if err := need(2, "<id> and <title>"); err != nil {
			return err
		}
		return c.mutate(ctx, args[1], func(who string) (store.Presentation, error) {
			return c.st.SetTitle(ctx, args[1], who, strings.Join(args[2:], " "))
		})
	case "add-slide":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		return c.mutate(ctx, args[1], func(who string) (store.Presentation, error) {
			return c.st.AddSlide(ctx, args[1], who)
		})
	case "remove-slide":
		if err := need(2, "<id> and <n>"); err != nil {
			return err
		}
		n, err := slideNumber(args[2])
		if err != nil {
			return err
		}
		return c.mutate(ctx, args[1], func(who string) (store.Presentation, error) {
			return c.st.RemoveSlide(ctx, args[1], who, n)
		})
	case "role":
		if err := need(2, "<id> and <user>"); err != nil {
			return err
		}
		return c.role(ctx, args[1], args[2], args[3:])
	case "add":
		if err := need(3, "<id>, <n> and <kind>"); err != nil {
			return err
		}
		return c.add(ctx, args[1], args[2], args[3], strings.Join(args[4:], " "))
	case "delete":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		return c.remove(ctx, args[1])
	case "export":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		out := c.cfg.Export.Dir
		if len(args) > 2 {
			out = args[2]
		}
		return c.exportPDF(ctx, args[1], out)
	case "png":
		if err := need(2, "<id> and <dir>"); err != nil {
			return err
		}
		return c.exportPNG(ctx, args[1], args[2])
	case "present":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		return c.present(ctx, args[1])
	case "watch":
		if err := need(1, "<id>"); err != nil {
			return err
		}
		sctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		return c.watch(sctx, args[1])
	case "ui":
		opts := ui.Options{Store: c.st, Config: c.cfg, SaveIdentity: func(name string) error {
			c.cfg.General.Identity = name
			return c.saveConfig(c.cfg)
		}}
		if len(args) > 1 {
			opts.Open = args[1]
		}
		return ui.Run(opts)
	}
	return usageErr("unknown command %q", args[0])
}

// slideNumber parses a one-based slide number into an index.
func slideNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, usageErr("slide number must be 1 or more, got %q", s)
	}
	return n - 1, nil
}

func (c *cli) whoami(args []string) error {
	if len(args) == 0 {
		who, err := c.identity()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, who)
		return nil
	}
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return usageErr("display name must not be empty")
	}
	c.cfg.General.Identity = name
	if err := c.saveConfig(c.cfg); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Display name set to", name)
	return nil
}

func (c *cli) create(ctx context.Context, title string) error {
	who, err := c.identity()
	if err != nil {
		return err
	}
	p, err := c.st.Create(ctx, who)
	if err != nil {
		return err
	}
	if strings.TrimSpace(title) != "" {
		if p, err = c.st.SetTitle(ctx, p.ID, who, title); err != nil {
			return err
		}
	}
	c.log.Info("presentation created", slog.String("presentation", p.ID))
	fmt.Fprintln(c.out, p.ID)
	return nil
}

func (c *cli) list(ctx context.Context) error {
	sums, err := c.st.Summaries(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCREATOR\tSLIDES\tMEMBERS")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Title, s.Creator, s.SlideCount, s.UserCount)
	}
	return tw.Flush()
}

func (c *cli) join(ctx context.Context, id string) error {
	who, err := c.identity()
	if err != nil {
		return err
	}
	p, err := c.st.Join(ctx, id, who)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Joined %q as %s\n", p.Title, p.RoleOf(who))
	return nil
}

func (c *cli) show(ctx context.Context, id string) error {
	p, err := c.st.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n", p.Title, p.ID)
	fmt.Fprintf(c.out, "Created by %s, version %d\n", p.Creator, p.Version)
	fmt.Fprintln(c.out, "Members:")
	for _, u := range p.Users {
		fmt.Fprintf(c.out, "  %s (%s)\n", u.Name, u.Role)
	}
	fmt.Fprintln(c.out, "Slides:")
	for i, sl := range p.Slides {
		fmt.Fprintf(c.out, "  %d: %s\n", i+1, describeSlide(sl))
	}
	return nil
}

// describeSlide summarizes the drawables of a slide by kind.
func describeSlide(sl store.Slide) string {
	if sl.Empty() {
		return "empty"
	}
	sc, err := scene.Deserialize(sl.Content)
	if err != nil {
		return "unreadable: " + err.Error()
	}
	counts := sc.Count()
	var parts []string
	for _, k := range scene.Kinds {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, ", ")
}

// mutate runs a store mutation as the current user and reports whether it
// changed anything; permission violations leave the version unchanged.
func (c *cli) mutate(ctx context.Context, id string, fn func(who string) (store.Presentation, error)) error {
	who, err := c.identity()
	if err != nil {
		return err
	}
	before, err := c.st.Get(ctx, id)
	if err != nil {
		return err
	}
	p, err := fn(who)
	if err != nil {
		return err
	}
	if p.Version == before.Version {
		fmt.Fprintf(c.out, "No change (you are %s)\n", roleName(before.RoleOf(who)))
		return nil
	}
	fmt.Fprintf(c.out, "Updated %q to version %d (%d slides)\n", p.Title, p.Version, len(p.Slides))
	return nil
}

func roleName(r store.Role) string {
	if r == "" {
		return "not a member"
	}
	return string(r)
}

func (c *cli) role(ctx context.Context, id, user string, rest []string) error {
	if len(rest) == 0 {
		return c.mutate(ctx, id, func(who string) (store.Presentation, error) {
			return c.st.ToggleRole(ctx, id, who, user)
		})
	}
	r := store.Role(strings.ToLower(rest[0]))
	if r != store.RoleEditor && r != store.RoleViewer {
		return usageErr("role must be editor or viewer, got %q", rest[0])
	}
	return c.mutate(ctx, id, func(who string) (store.Presentation, error) {
		return c.st.SetRole(ctx, id, who, user, r)
	})
}

// openShell joins id through a shell so edits go through the canvas.
func (c *cli) openShell(ctx context.Context, id string) (*shell.Shell, error) {
	sh := shell.New(c.st, shell.Options{Config: c.cfg, Logger: c.log})
	if _, err := sh.Open(ctx, id); err != nil {
		sh.Close()
		return nil, err
	}
	return sh, nil
}

func (c *cli) add(ctx context.Context, id, slide, kind, value string) error {
	n, err := slideNumber(slide)
	if err != nil {
		return err
	}
	sh, err := c.openShell(ctx, id)
	if err != nil {
		return err
	}
	defer sh.Close()
	if !sh.SelectSlide(n) {
		return fmt.Errorf("slide %d: %w", n+1, store.ErrSlideIndex)
	}
	ctl, err := sh.Canvas()
	if err != nil {
		return err
	}
	if !sh.CanEdit() {
		return fmt.Errorf("%s is %s here and cannot edit", sh.Identity(), roleName(sh.Role()))
	}
	var newID string
	switch kind {
	case "text":
		newID = ctl.AddText()
		if newID != "" && value != "" {
			ctl.SetText(value)
		}
	case "rect":
		newID = ctl.AddRect()
	case "circle":
		newID = ctl.AddCircle()
	case "arrow":
		newID = ctl.AddArrow()
	case "image":
		if value == "" {
			return usageErr("image requires a file path")
		}
		data, err := os.ReadFile(value)
		if err != nil {
			return err
		}
		if newID, err = ctl.ImportImage(ctx, data); err != nil {
			return err
		}
	default:
		return usageErr("unknown kind %q", kind)
	}
	if newID == "" {
		return errors.New("edit rejected")
	}
	fmt.Fprintln(c.out, newID)
	return nil
}

func (c *cli) remove(ctx context.Context, id string) error {
	who, err := c.identity()
	if err != nil {
		return err
	}
	ok, err := c.st.Delete(ctx, id, who)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("only the creator can delete this presentation")
	}
	fmt.Fprintln(c.out, "Deleted", id)
	return nil
}

func (c *cli) exportOptions() export.Options {
	return export.Options{Settle: c.cfg.Export.Settle(), Logger: c.log.With(slog.String("op", "export"))}
}

func (c *cli) exportPDF(ctx context.Context, id, out string) error {
	p, err := c.st.Get(ctx, id)
	if err != nil {
		return err
	}
	who, _ := c.identity()
	res, err := export.ExportPDF(ctx, p, out, export.PDFOptions{Options: c.exportOptions(), Author: who})
	if err != nil {
		return err
	}
	reportExport(c.out, res)
	return nil
}

func (c *cli) exportPNG(ctx context.Context, id, dir string) error {
	p, err := c.st.Get(ctx, id)
	if err != nil {
		return err
	}
	res, err := export.ExportPNG(ctx, p, dir, c.exportOptions())
	if err != nil {
		return err
	}
	reportExport(c.out, res)
	return nil
}

func reportExport(w io.Writer, res export.Result) {
	fmt.Fprintf(w, "Wrote %d pages to %s\n", res.Pages, res.Path)
	if len(res.Skipped) > 0 {
		nums := make([]string, len(res.Skipped))
		for i, s := range res.Skipped {
			nums[i] = strconv.Itoa(s + 1)
		}
		fmt.Fprintf(w, "Skipped slides: %s\n", strings.Join(nums, ", "))
	}
}

// present steps through the slides, reading one command per line.
func (c *cli) present(ctx context.Context, id string) error {
	sh, err := c.openShell(ctx, id)
	if err != nil {
		return err
	}
	defer sh.Close()
	if err := sh.Present(); err != nil {
		return err
	}
	show := func() {
		cur, _ := sh.Current()
		i := sh.SlideIndex()
		fmt.Fprintf(c.out, "[%d/%d] %s\n", i+1, len(cur.Slides), describeSlide(cur.Slides[i]))
		for _, t := range slideTexts(cur.Slides[i]) {
			fmt.Fprintf(c.out, "    %s\n", t)
		}
	}
	show()
	in := bufio.NewScanner(c.in)
	for in.Scan() {
		var key string
		switch strings.TrimSpace(in.Text()) {
		case "", "n", "next":
			key = shell.KeyRight
		case "p", "prev":
			key = shell.KeyLeft
		case "q", "quit":
			key = shell.KeyEscape
		default:
			fmt.Fprintln(c.out, "n=next, p=prev, q=quit")
			continue
		}
		sh.HandleKey(key)
		if sh.View() != shell.ViewPresenting {
			return nil
		}
		show()
	}
	return in.Err()
}

// slideTexts returns the text values on a slide in z-order.
func slideTexts(sl store.Slide) []string {
	sc, err := scene.Deserialize(sl.Content)
	if err != nil {
		return nil
	}
	var out []string
	for _, d := range sc.Objects {
		if t, ok := d.Shape.(scene.Text); ok {
			out = append(out, t.Value)
		}
	}
	return out
}

func (c *cli) watch(ctx context.Context, id string) error {
	p, err := c.st.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Watching %q at version %d, Ctrl+C to stop\n", p.Title, p.Version)
	return c.st.Watch(ctx, id, c.cfg.Storage.PollInterval(), func(p store.Presentation) {
		fmt.Fprintf(c.out, "version %d: %q, %d slides, %d members\n", p.Version, p.Title, len(p.Slides), len(p.Users))
	})
}
