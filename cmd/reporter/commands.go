package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shenikar/civic_issue_reporter/internal/capture"
	"github.com/shenikar/civic_issue_reporter/internal/connectivity"
	"github.com/shenikar/civic_issue_reporter/internal/geotag"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/notify"
	"github.com/shenikar/civic_issue_reporter/internal/offline"
	"github.com/shenikar/civic_issue_reporter/internal/wizard"
)

type reportFlags struct {
	Photo       string
	Title       string
	Description string
	Category    string
	Address     string
	Lat         float64
	Lng         float64
}

func (a *app) report(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var f reportFlags
	fs.StringVar(&f.Photo, "photo", "", "Path to the photo (required)")
	fs.StringVar(&f.Title, "title", "", "Short title, defaults to \""+wizard.DefaultTitle+"\"")
	fs.StringVar(&f.Description, "description", "", "What is wrong (required)")
	fs.StringVar(&f.Category, "category", string(models.CategoryPothole), "pothole|graffiti|streetlight|garbage|other")
	fs.StringVar(&f.Address, "address", "", "Address, defaults to \""+wizard.DefaultAddress+"\"")
	fs.Float64Var(&f.Lat, "lat", 0, "Latitude; taken from the photo EXIF when omitted")
	fs.Float64Var(&f.Lng, "lng", 0, "Longitude; taken from the photo EXIF when omitted")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		return 2
	}
	if f.Photo == "" {
		fmt.Fprintln(os.Stderr, "report: -photo is required")
		return 2
	}

	explicit := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "lat" || fl.Name == "lng" {
			explicit = true
		}
	})

	// У CLI нет камеры: снимок всегда берется из файла
	probe := capture.StaticProbe{
		GeolocationAvailability: capture.Available,
		CameraAvailability:      capture.Unavailable,
	}
	var locator capture.Locator = capture.ExifLocator{Photo: func() []byte {
		data, err := os.ReadFile(f.Photo)
		if err != nil {
			return nil
		}
		return data
	}}
	if explicit {
		locator = capture.StaticLocator{Position: models.GeoPosition{Latitude: f.Lat, Longitude: f.Lng}}
	}

	geo := capture.NewGeoCapture(probe, locator, a.cfg.GeoTimeout, a.log)
	media := capture.NewMediaCapture(probe, nil, capture.PathPicker{Path: f.Photo}, a.log)

	w := wizard.New(geo, media, geotag.New(a.log), a.api, a.queue, wizard.Options{
		WardID: a.cfg.WardID,
		UserID: a.cfg.UserID,
	}, a.log)
	defer w.Close()

	if err := w.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		return 1
	}
	w.Wait()
	for _, warn := range w.Warnings() {
		// отсутствие камеры ожидаемо
		if warn.Channel == wizard.ChannelCamera {
			continue
		}
		fmt.Fprintf(os.Stderr, "warning: %s\n", warn.Message())
	}

	steps := []func() error{
		func() error { return w.Upload(ctx) },
		w.Next,
		func() error { return w.SetCategory(models.IssueCategory(f.Category)) },
		func() error { return w.SetTitle(f.Title) },
		func() error { return w.SetDescription(f.Description) },
		func() error { return w.SetAddress(f.Address) },
		w.Next,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			fmt.Fprintf(os.Stderr, "report: %v\n", err)
			return 1
		}
	}

	c := w.Confirmation()
	fmt.Fprintf(a.out, "Category:    %s\n", c.Category)
	fmt.Fprintf(a.out, "Location:    %s\n", c.Location)
	fmt.Fprintf(a.out, "Title:       %s\n", c.Title)
	fmt.Fprintf(a.out, "Description: %s\n", c.Description)
	fmt.Fprintf(a.out, "Geotagged:   %t\n", c.Geotagged)

	outcome, err := w.Submit(ctx)
	if err != nil {
		if errors.Is(err, wizard.ErrPositionRequired) {
			fmt.Fprintln(os.Stderr, "report: location unknown; pass -lat and -lng or use a geotagged photo")
		} else {
			fmt.Fprintf(os.Stderr, "report: %v\n", err)
		}
		return 1
	}

	switch outcome.State {
	case wizard.Submitted:
		fmt.Fprintf(a.out, "Submitted issue %s (status %s)\n", outcome.Issue.ID, outcome.Issue.Status)
	case wizard.Queued:
		fmt.Fprintln(a.out, outcome.Notice)
	}
	return 0
}

func (a *app) flush(ctx context.Context) int {
	res, err := a.queue.Flush(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		return 1
	}
	if res.Skipped {
		fmt.Fprintln(a.out, "Queue is already being flushed by another process")
		return 0
	}
	fmt.Fprintf(a.out, "Sent %d of %d, %d remaining\n", res.Succeeded, res.Attempted, res.Remaining)
	if res.Remaining > 0 {
		return 1
	}
	return 0
}

func (a *app) listQueue(ctx context.Context) int {
	entries, err := a.queue.Pending(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "queue: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "Queue is empty")
		return 0
	}
	for i, e := range entries {
		fmt.Fprintf(a.out, "%d. %s %s\n", i+1, e.Type, summarizeEntry(e))
	}
	return 0
}

func summarizeEntry(e offline.Entry) string {
	if e.Type != offline.KindCreateIssue {
		return fmt.Sprintf("(%d bytes)", len(e.Payload))
	}
	p, err := offline.DecodeCreateIssue(e)
	if err != nil {
		return "(corrupt payload)"
	}
	return fmt.Sprintf("%q [%s] at %.4f, %.4f", p.Title, p.Category, p.Location.Lat, p.Location.Lng)
}

// watch держит монитор связи и сбрасывает очередь при каждом восстановлении
func (a *app) watch(ctx context.Context) int {
	monitor := connectivity.NewMonitor(a.api, a.cfg.ConnectivityInterval, a.cfg.APITimeout, a.log)
	unsubscribe := a.queue.Listen(ctx, monitor)
	defer unsubscribe()

	fmt.Fprintf(a.out, "Watching %s every %s, Ctrl+C to stop\n", a.cfg.APIBaseURL, a.cfg.ConnectivityInterval)
	monitor.Run(ctx)
	return 0
}

func (a *app) notifications(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("notifications", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var follow bool
	fs.BoolVar(&follow, "follow", false, "Keep polling every NOTIFY_INTERVAL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "notifications: %v\n", err)
		return 2
	}

	poller := notify.NewPoller(a.api, a.cfg.NotifyInterval, a.cfg.APITimeout, a.log)
	if !follow {
		printSummary(a.out, poller.Poll(ctx))
		return 0
	}
	poller.Run(ctx, func(s notify.Summary) {
		fmt.Fprintf(a.out, "-- %s\n", time.Now().Format(time.TimeOnly))
		printSummary(a.out, s)
	})
	return 0
}

func printSummary(w io.Writer, s notify.Summary) {
	if s.Count == 0 {
		fmt.Fprintln(w, "No notifications")
		return
	}
	fmt.Fprintf(w, "%d notification(s)\n", s.Count)
	for _, it := range s.Items {
		fmt.Fprintf(w, "  [%s] %s - %s (%s)\n", strings.ToUpper(string(it.Kind)), it.Title, it.Meta, it.Href)
	}
}
