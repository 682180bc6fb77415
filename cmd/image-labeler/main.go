package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	imagelabeler "github.com/menta2k/image-labeler"
	"github.com/menta2k/image-labeler/internal/config"
	"github.com/menta2k/image-labeler/internal/logger"
	"github.com/menta2k/image-labeler/internal/server"
	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/corpus"
)

const usage = `usage: image-labeler <command> [flags] [args]

commands:
  serve                      run the HTTP server
  label [-import file] name  label stored images (or import a local file first)
  relabel [name...]          label the named images, or every unlabeled image
  translate text             translate and normalize a tag string
  export [-out file] [-s3]   write the corpus archive to a file or upload it to S3
  init-config [-out file]    write the default configuration
  version                    print the version

common flags:
  -config file   configuration file (JSON or YAML); LABELER_* variables override it
  -backend name  ollama or llamacpp
  -url url       model server URL
`

// commonFlags are accepted by every command that talks to the corpus
type commonFlags struct {
	configPath string
	backend    string
	url        string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "configuration file (JSON or YAML)")
	fs.StringVar(&c.backend, "backend", "", "model backend: ollama or llamacpp")
	fs.StringVar(&c.url, "url", "", "model server URL")
}

func (c *commonFlags) load() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.backend != "" {
		cfg.Model.Backend = c.backend
	}
	if c.url != "" {
		cfg.Model.URL = c.url
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "label":
		err = runLabel(args)
	case "relabel":
		err = runRelabel(args)
	case "translate":
		err = runTranslate(args)
	case "export":
		err = runExport(args)
	case "init-config":
		err = runInitConfig(args)
	case "version":
		fmt.Println(imagelabeler.Version)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "image-labeler %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// setup parses flags and wires the labeler. The caller closes the labeler
// and syncs the logger.
func setup(ctx context.Context, name string, args []string, extra func(*flag.FlagSet)) (*imagelabeler.Labeler, *zap.Logger, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := common.load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, nil, err
	}

	labeler, err := imagelabeler.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return labeler, log, fs, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func runServe(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	labeler, log, _, err := setup(ctx, "serve", args, nil)
	if err != nil {
		return err
	}
	defer labeler.Close()
	defer log.Sync()

	srv := server.New(labeler, log)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Received signal, shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), labeler.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	log.Info("Server exited")
	return nil
}

func runLabel(args []string) error {
	ctx := context.Background()
	var importPath string
	labeler, log, fs, err := setup(ctx, "label", args, func(fs *flag.FlagSet) {
		fs.StringVar(&importPath, "import", "", "local image file to copy into the upload area first")
	})
	if err != nil {
		return err
	}
	defer labeler.Close()
	defer log.Sync()

	names := fs.Args()
	if importPath != "" {
		name, err := importImage(labeler, importPath)
		if err != nil {
			return err
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return errors.New("no image given")
	}

	for _, name := range names {
		res, err := labeler.Pipeline.Run(ctx, name)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
	}
	return nil
}

func importImage(labeler *imagelabeler.Labeler, path string) (string, error) {
	if !utils.IsImageFile(path) {
		return "", fmt.Errorf("%s: unsupported image type", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := utils.GenerateUploadName(filepath.Base(path))
	if _, err := labeler.Images.Save(name, f); err != nil {
		return "", err
	}
	return name, nil
}

func runRelabel(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	labeler, log, fs, err := setup(ctx, "relabel", args, nil)
	if err != nil {
		return err
	}
	defer labeler.Close()
	defer log.Sync()

	res, err := labeler.Pipeline.RunMany(ctx, fs.Args())
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runTranslate(args []string) error {
	ctx := context.Background()
	labeler, log, fs, err := setup(ctx, "translate", args, nil)
	if err != nil {
		return err
	}
	defer labeler.Close()
	defer log.Sync()

	res, err := labeler.Pipeline.Translate(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runExport(args []string) error {
	ctx := context.Background()
	var out string
	var toS3 bool
	labeler, log, _, err := setup(ctx, "export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "images-and-labels.zip", "output archive path")
		fs.BoolVar(&toS3, "s3", false, "upload the archive to the configured bucket instead")
	})
	if err != nil {
		return err
	}
	defer labeler.Close()
	defer log.Sync()

	if toS3 {
		snap, err := labeler.PublishSnapshot(ctx)
		if err != nil {
			return err
		}
		return printJSON(snap)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := labeler.Corpus.Export(f); err != nil {
		f.Close()
		_ = os.Remove(out)
		if errors.Is(err, corpus.ErrNothingToExport) {
			return errors.New("nothing to export: upload and label directories are empty")
		}
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info("archive written", zap.String("path", out))
	return nil
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	out := fs.String("out", config.GetConfigPath(), "where to write the configuration")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *out)
	}
	if err := config.Default().SaveToFile(*out); err != nil {
		return err
	}
	fmt.Println("wrote", *out)
	return nil
}
