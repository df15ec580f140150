// Package main is the sparkle-eraser command line: it removes the sparkle
// logo and caption labels from images, the NotebookLM footer from PDFs, and
// can serve both over HTTP.
//
// Usage:
//
//	sparkle-eraser [-config local.env.yaml] [-debug] image -src in.png -dst out.png [-enhance]
//	sparkle-eraser [-config local.env.yaml] [-debug] pdf -src in.pdf -dst out.pdf
//	sparkle-eraser [-config local.env.yaml] [-debug] template -src screenshot.png -dst template.png
//	sparkle-eraser [-config local.env.yaml] [-debug] serve
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cyber-nic/sparkle-eraser/internal/config"
	"github.com/cyber-nic/sparkle-eraser/internal/pdfclean"
	"github.com/cyber-nic/sparkle-eraser/internal/server"
	"github.com/cyber-nic/sparkle-eraser/internal/visual"
	"github.com/cyber-nic/sparkle-eraser/internal/watermark"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	configFilename := flag.String("config", config.DefaultFile, "Config File")
	debugFlag := flag.Bool("debug", false, "Debug logging level")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configFilename, ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *debugFlag {
		cfg.Debug = true
	}
	setupLogging(cfg)

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "image":
		err = runImage(cfg, args)
	case "pdf":
		err = runPDF(cfg, args)
	case "template":
		err = runTemplate(args)
	case "serve":
		err = runServe(cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-config file] [-debug] <image|pdf|template|serve> [flags]\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func setupLogging(cfg *config.AppConfig) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	if cfg.Info {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if cfg.Human {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// srcDst parses the -src/-dst pair shared by the file subcommands.
func srcDst(name string, args []string, extra func(*flag.FlagSet)) (string, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	srcPath := fs.String("src", "", "sets input path")
	dstPath := fs.String("dst", "", "sets destination path")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if *srcPath == "" || *dstPath == "" {
		return "", "", fmt.Errorf("%s: src and dst are required", name)
	}
	return *srcPath, *dstPath, nil
}

func runImage(cfg *config.AppConfig, args []string) error {
	enhance := cfg.Enhance
	src, dst, err := srcDst("image", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&enhance, "enhance", cfg.Enhance, "denoise, upscale 2x and sharpen the result")
	})
	if err != nil {
		return err
	}

	start := time.Now()
	repo := watermark.NewRepository(cfg.TemplateSources())
	defer repo.Close()
	cleaner := watermark.NewCleaner(cfg.Params(), repo, watermark.Options{Enhance: enhance})

	res := cleaner.Clean(src, dst)
	if !res.OK {
		return fmt.Errorf("%s", res.Message)
	}
	log.Info().
		Str("src", filepath.Base(src)).
		Str("dst", dst).
		Str("strategy", string(res.Diagnostics.Strategy)).
		Float64("score", res.Diagnostics.Score).
		Int("maskPixels", res.Diagnostics.MaskPixels).
		Int64("duration(ms)", time.Since(start).Milliseconds()).
		Msg(res.Message)

	if cfg.Visual && !enhance {
		writeDiff(src, dst)
	}
	return nil
}

// writeDiff saves a change map next to dst for visual inspection.
func writeDiff(src, dst string) {
	before, err := watermark.Load(src)
	if err != nil {
		log.Warn().Err(err).Msg("diff: reload source")
		return
	}
	defer before.Close()
	after, err := watermark.Load(dst)
	if err != nil {
		log.Warn().Err(err).Msg("diff: reload result")
		return
	}
	defer after.Close()

	path, n, err := visual.WriteDiff(before.ToImage(), after.ToImage(), dst)
	if err != nil {
		log.Warn().Err(err).Msg("diff")
		return
	}
	log.Info().Str("diff", path).Int("changedPixels", n).Msg("change map written")
}

func runPDF(cfg *config.AppConfig, args []string) error {
	src, dst, err := srcDst("pdf", args, nil)
	if err != nil {
		return err
	}
	report, err := pdfclean.NewRedactor(cfg.PDFOptions()).Redact(src, dst)
	if err != nil {
		return err
	}
	fmt.Println(report.Message())
	return nil
}

func runTemplate(args []string) error {
	src, dst, err := srcDst("template", args, nil)
	if err != nil {
		return err
	}
	maskPath, err := watermark.ExtractTemplateFile(src, dst)
	if err != nil {
		return err
	}
	log.Info().Str("template", dst).Str("mask", maskPath).Msg("template extracted")
	return nil
}

func runServe(cfg *config.AppConfig) error {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	repo := watermark.NewRepository(cfg.TemplateSources())
	defer repo.Close()
	// Load templates up front so the first upload does not pay for it.
	log.Info().Int("templates", len(repo.Templates())).Msg("templates ready")

	srv, err := server.New(server.Config{
		Port:         cfg.Server.Port,
		UploadDir:    cfg.Server.UploadDir,
		ProcessedDir: cfg.Server.ProcessedDir,
		MaxFileSize:  cfg.Server.MaxFileSize,
		MaxAge:       cfg.Server.MaxAge,
	},
		watermark.NewCleaner(cfg.Params(), repo, watermark.Options{Enhance: cfg.Enhance}),
		pdfclean.NewRedactor(cfg.PDFOptions()),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
