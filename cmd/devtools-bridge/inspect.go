package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"devtools-bridge/internal/adapter/launcher"
	"devtools-bridge/internal/domain"
	"devtools-bridge/internal/infra/logger"
	"devtools-bridge/internal/usecase/bridge"
)

type inspectOptions struct {
	endpoint   string
	find       string
	screenshot string
	archive    bool
	launch     bool
	hold       time.Duration
}

func inspectCmd(opts *rootOptions) *cobra.Command {
	var po inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Load a URL in the remote page and report title, location and traffic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), opts, po, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&po.endpoint, "endpoint", "", "page WebSocket URL (default: bridge.endpoint, then discovery)")
	f.StringVar(&po.find, "find", "", "CSS selector whose matches are listed after loading")
	f.StringVar(&po.screenshot, "screenshot", "", "write a PNG of the viewport to this file")
	f.BoolVar(&po.archive, "archive", false, "archive captured traffic (also enabled by archive.enabled)")
	f.BoolVar(&po.launch, "launch", false, "start a local browser (see launcher.*) and inspect its first page")
	f.DurationVar(&po.hold, "hold", 0, "keep the session open this long before closing")
	return cmd
}

func runInspect(ctx context.Context, out io.Writer, opts *rootOptions, po inspectOptions, target string) (err error) {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	sessOpts, err := a.sessionOptions()
	if err != nil {
		return err
	}
	mgrOpts := []bridge.ManagerOption{
		bridge.WithSessionOptions(sessOpts...),
		bridge.WithManagerLogger(logger.Component(a.logger, "bridge")),
	}
	if po.archive || a.cfg.Archive.Enabled {
		archive, err := a.openArchive()
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		mgrOpts = append(mgrOpts, bridge.WithArchive(archive))
	}
	mgr := bridge.NewManager(a.dialer(), mgrOpts...)
	a.serveOps(ctx, func(context.Context) (map[string]any, error) {
		return map[string]any{"sessions": len(mgr.List())}, nil
	})

	if po.launch && po.endpoint == "" {
		browser, err := launcher.Launch(ctx, a.cfg.Launcher, logger.Component(a.logger, "launcher"))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return browser.Close() })
		po.endpoint = browser.PageEndpoint()
	}
	endpoint, err := a.endpoint(ctx, po.endpoint)
	if err != nil {
		return err
	}
	id, sess, err := mgr.Open(ctx, endpoint)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := mgr.Close(context.WithoutCancel(ctx), id); err == nil {
			err = cerr
		}
	}()

	if h := a.cfg.Bridge.ExtraHeaders; len(h) > 0 {
		if _, err := sess.SetHeaders(ctx, h); err != nil {
			return fmt.Errorf("set headers: %w", err)
		}
	}
	if err := sess.Navigate(ctx, target); err != nil {
		return domain.WrapOp("navigate", err)
	}

	title, err := sess.Title(ctx)
	if err != nil {
		return domain.WrapOp("read title", err)
	}
	location, err := sess.CurrentURL(ctx)
	if err != nil {
		return domain.WrapOp("read location", err)
	}
	fmt.Fprintf(out, "session:  %s\nendpoint: %s\ntitle:    %s\nurl:      %s\n", id, endpoint, title, location)

	if po.find != "" {
		if err := printMatches(ctx, out, sess, po.find); err != nil {
			return err
		}
	}
	if po.screenshot != "" {
		if err := writeScreenshot(ctx, sess, po.screenshot); err != nil {
			return err
		}
		fmt.Fprintf(out, "screenshot: %s\n", po.screenshot)
	}

	if po.hold > 0 {
		select {
		case <-time.After(po.hold):
		case <-ctx.Done():
		}
	}

	fmt.Fprintln(out)
	return printTraffic(out, sess.NetworkTraffic())
}

func printMatches(ctx context.Context, out io.Writer, sess *bridge.Session, selector string) error {
	handles, err := sess.FindElements(ctx, domain.StrategyCSS, selector)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d match(es) for %q\n", len(handles), selector)
	for _, h := range handles {
		tag, err := sess.TagName(ctx, h)
		if err != nil {
			return err
		}
		text, err := sess.Text(ctx, h)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  [%d] <%s> %q\n", h.Index, tag, text)
	}
	return nil
}

func writeScreenshot(ctx context.Context, sess *bridge.Session, path string) error {
	data, err := sess.Screenshot(ctx)
	if err != nil {
		return domain.WrapOp("screenshot", err)
	}
	png, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}
	return os.WriteFile(path, png, 0o600)
}

func printTraffic(out io.Writer, entries []domain.NetworkEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tMETHOD\tTYPE\tURL")
	for _, e := range entries {
		status := "-"
		if e.Response != nil {
			status = fmt.Sprint(e.Response.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", status, e.Request.Method, e.Request.ResourceType, e.Request.URL)
	}
	return tw.Flush()
}
