package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/image/font/gofont/goregular"

	"calpost/internal/config"
	"calpost/internal/layout"
	appLog "calpost/internal/log"
	"calpost/internal/model"
	"calpost/internal/publish"
	"calpost/internal/render"
	"calpost/internal/scheduler"
	"calpost/internal/source"
	"calpost/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	renderOnly bool
	out        string
	authorize  bool
}

func main() {
	appLog.Info("calpost starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.Refresh,
		"source", conf.Source.Type,
		"max_rows_per_day", conf.MaxRowsPerDay,
		"once", flags.once,
		"render_only", flags.renderOnly,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.authorize {
		if conf.Source.Type != "google" {
			appLog.Error("authorize requires a google source", errors.New("source type is "+conf.Source.Type))
			os.Exit(1)
		}
		if err := source.Authorize(ctx, conf.Source.CredentialsFile, conf.Source.TokenFile); err != nil {
			appLog.Error("authorization failed", err)
			os.Exit(1)
		}
		appLog.Info("authorization complete", "token_file", conf.Source.TokenFile)
		return
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	style, err := styleFromConfig(conf)
	if err != nil {
		appLog.Error("invalid image config", err)
		os.Exit(1)
	}

	faces, fontName, err := facesFromConfig(conf)
	if err != nil {
		appLog.Error("failed to resolve a usable font", err, "script", conf.Script)
		os.Exit(1)
	}
	appLog.Info("font resolved", "font", fontName, "script", conf.Script)

	src, err := buildSource(ctx, conf, loc)
	if err != nil {
		appLog.Error("failed to build event source", err, "type", conf.Source.Type)
		os.Exit(1)
	}

	build := buildPipeline(conf, loc, style, faces)

	if flags.renderOnly {
		if err := renderToFile(ctx, src, build, loc, flags.out); err != nil {
			appLog.Error("render failed", err)
			os.Exit(1)
		}
		return
	}

	pubs := publish.Multi{}
	if conf.Discord.WebhookURL != "" {
		pubs = append(pubs, publish.NewDiscordPublisher(conf.Discord.WebhookURL))
	} else {
		appLog.Info("no discord webhook configured, publishing preview only")
	}
	pubs = append(pubs, &publish.FilePublisher{Path: conf.PreviewPath})

	state, err := config.LoadState(conf.StateFile)
	if err != nil {
		appLog.Error("failed to load state, starting fresh", err, "state_file", conf.StateFile)
		state = &config.State{}
	}

	sched := scheduler.New(scheduler.Options{
		Source:       src,
		Build:        build,
		Publisher:    pubs,
		Location:     loc,
		CycleTimeout: conf.CycleTimeoutDuration(),
		InitialToken: state.Token,
		OnTokenChange: func(token string) {
			st := &config.State{Token: token, UpdatedAt: time.Now()}
			if err := config.SaveState(conf.StateFile, st); err != nil {
				appLog.Error("failed to persist state", err, "state_file", conf.StateFile)
			}
		},
	})

	if flags.once {
		if err := sched.RunOnce(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	srv := web.NewServer(conf, sched)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(ctx) }()
	go func() { errCh <- sched.Run(ctx, conf.Refresh) }()

	err = <-errCh
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("fatal", err)
		os.Exit(1)
	}

	// Give the remaining goroutine a moment to finish shutdown.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("calpost exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calpost/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one forced fetch+render+publish cycle and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render the current month to -out and exit without publishing")
	flag.StringVar(&cfg.out, "out", "calendar.png", "Output path for -render-only")
	flag.BoolVar(&cfg.authorize, "authorize", false, "Run the Google OAuth flow and store the token")

	flag.Parse()

	return cfg
}

// styleFromConfig translates the YAML image block into renderer colors.
func styleFromConfig(conf *config.Config) (render.Style, error) {
	style := render.DefaultStyle()
	style.Width = conf.Image.Width
	style.Height = conf.Image.Height
	style.TitleFormat = conf.TitleFormat

	var err error
	if style.Background, err = render.ParseHexColor(conf.Image.Background); err != nil {
		return style, fmt.Errorf("background: %w", err)
	}
	if style.Text, err = render.ParseHexColor(conf.Image.Text); err != nil {
		return style, fmt.Errorf("text: %w", err)
	}
	if style.Header, err = render.ParseHexColor(conf.Image.Header); err != nil {
		return style, fmt.Errorf("header: %w", err)
	}
	return style, nil
}

// facesFromConfig loads configured fonts, appends the bundled fallback
// and resolves one that covers the configured script.
func facesFromConfig(conf *config.Config) (render.Faces, string, error) {
	script, err := render.ParseScript(conf.Script)
	if err != nil {
		return render.Faces{}, "", err
	}

	assets := render.LoadAssets(conf.Fonts)
	assets = append(assets, render.FontAsset{Name: "goregular (bundled)", Data: goregular.TTF})

	fnt, name, err := render.ResolveFont(script, assets)
	if err != nil {
		return render.Faces{}, "", err
	}

	faces, err := render.NewFaces(fnt)
	if err != nil {
		return render.Faces{}, "", err
	}
	return faces, name, nil
}

func buildSource(ctx context.Context, conf *config.Config, loc *time.Location) (source.Source, error) {
	switch conf.Source.Type {
	case "ics":
		feeds := make([]source.Feed, 0, len(conf.Source.Feeds))
		for _, f := range conf.Source.Feeds {
			id := f.ID
			if id == "" {
				if f.Name != "" {
					id = f.Name
				} else {
					id = f.URL
				}
			}
			feeds = append(feeds, source.Feed{ID: id, URL: f.URL})
		}
		return source.NewICSSource(conf.CacheDir, feeds, loc), nil
	case "google":
		return source.NewGoogleSource(ctx,
			conf.Source.CredentialsFile, conf.Source.TokenFile, conf.Source.CalendarID, loc)
	default:
		return nil, fmt.Errorf("unknown source type %q", conf.Source.Type)
	}
}

// buildPipeline wires normalization, layout and rendering into the
// scheduler's build step.
func buildPipeline(conf *config.Config, loc *time.Location, style render.Style, faces render.Faces) scheduler.BuildFunc {
	return func(month model.Month, raws []model.RawEvent) (publish.Artifact, error) {
		grid := layout.BuildGrid(month, conf.StartOfWeek())
		events := model.Normalize(raws, grid.Bounds(), loc)

		segments, err := layout.Layout(events, grid, conf.MaxRowsPerDay)
		if err != nil {
			return publish.Artifact{}, err
		}

		img := render.Render(grid, segments, style, faces)
		png, err := render.EncodePNG(img)
		if err != nil {
			return publish.Artifact{}, err
		}

		monthText, yearText := render.TitleText(grid, conf.TitleFormat)
		return publish.Artifact{
			PNG:         png,
			Month:       month,
			Title:       monthText + " " + yearText,
			EventCount:  len(events),
			GeneratedAt: time.Now(),
		}, nil
	}
}

// renderToFile runs one fetch and render, then writes the PNG to path.
func renderToFile(ctx context.Context, src source.Source, build scheduler.BuildFunc, loc *time.Location, path string) error {
	month := model.MonthOf(time.Now().In(loc))

	_, raws, err := src.FetchMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", month, err)
	}
	artifact, err := build(month, raws)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, artifact.PNG, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	appLog.Info("calendar rendered", "path", path, "events", artifact.EventCount, "bytes", len(artifact.PNG))
	return nil
}
