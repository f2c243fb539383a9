// Package main converts an AS .p object file into a flat ROM image, compressing
// the Z80 sound driver along the way.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dargueta/fdp2bin/image"
	"github.com/dargueta/fdp2bin/segmap"
	"github.com/dargueta/fdp2bin/sharefile"
	"github.com/dargueta/fdp2bin/transcoder"
	"github.com/hashicorp/go-multierror"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	version = "1.0.0"
	commit  = ""
	date    = ""
)

// errUsage means the usage text has already been shown and there's nothing
// more to print.
var errUsage = errors.New("usage")

func newApp() *cli.App {
	return &cli.App{
		Name:      "fdp2bin",
		Usage:     "Convert an AS .p file to a ROM image, compressing the Z80 sound driver",
		UsageText: "fdp2bin [options] INPUT.p OUTPUT.bin [SHARE.h]",
		Version:   buildinfo.Version(version, commit, date),
		HideHelp:  true,
		Writer:    os.Stderr,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "define",
				Value: sharefile.DefaultName,
				Usage: "name of the symbol written to the share file",
			},
			&cli.StringFlag{
				Name:  "map",
				Usage: "write a CSV report of where each segment was placed to `FILE`",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "only log warnings and errors",
			},
		},
		Action: convertFile,
	}
}

// wantsHelp returns true if any argument asks for help, in any letter case.
// This is checked before the arguments are parsed so that help works no matter
// where it appears.
func wantsHelp(args []string) bool {
	for _, arg := range args {
		if strings.EqualFold(arg, "-h") || strings.EqualFold(arg, "--help") {
			return true
		}
	}
	return false
}

func main() {
	app := newApp()

	if wantsHelp(os.Args[1:]) {
		_ = cli.ShowAppHelp(cli.NewContext(app, nil, nil))
		os.Exit(1)
	}

	err := app.Run(os.Args)
	if errors.Is(err, errUsage) {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "fdp2bin: %s\n", err)
		os.Exit(1)
	}
}

func newLogger(quiet bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.TimeKey = ""
	config.DisableCaller = true
	config.DisableStacktrace = true
	config.OutputPaths = []string{"stderr"}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if quiet {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return config.Build()
}

func convertFile(context *cli.Context) error {
	if context.NArg() < 2 {
		_ = cli.ShowAppHelp(context)
		return errUsage
	}

	inputPath := context.Args().Get(0)
	outputPath := context.Args().Get(1)
	sharePath := context.Args().Get(2)

	logger, err := newLogger(context.Bool("quiet"))
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	options := transcoder.DefaultOptions()
	options.Logger = logger

	result, err := convertToFile(inputPath, outputPath, options)
	if err != nil {
		return err
	}

	err = sharefile.Append(sharePath, context.String("define"), result.CompressedLength)
	if err != nil {
		return fmt.Errorf("failed to write share file `%s`: %w", sharePath, err)
	}

	mapPath := context.String("map")
	if mapPath != "" {
		err = writeMap(mapPath, result.Segments)
		if err != nil {
			return fmt.Errorf("failed to write segment map `%s`: %w", mapPath, err)
		}
	}
	return nil
}

// convertToFile converts the input file and writes the image to `outputPath`.
// Both files are opened before anything is parsed. If anything fails, the
// output file is deleted.
func convertToFile(
	inputPath, outputPath string, options *transcoder.Options,
) (result transcoder.Result, err error) {
	input, err := os.Open(inputPath)
	if err != nil {
		return result, fmt.Errorf("failed to open input file: %w", err)
	}

	output, err := os.Create(outputPath)
	if err != nil {
		_ = input.Close()
		return result, fmt.Errorf("failed to create output file: %w", err)
	}

	defer func() {
		var closeErrors *multierror.Error
		if closeErr := input.Close(); closeErr != nil {
			closeErrors = multierror.Append(closeErrors, closeErr)
		}
		if closeErr := output.Close(); closeErr != nil {
			closeErrors = multierror.Append(closeErrors, closeErr)
		}
		if err == nil {
			err = closeErrors.ErrorOrNil()
		}
		if err != nil {
			_ = os.Remove(outputPath)
		}
	}()

	img := image.New()
	result, err = transcoder.Convert(input, img, options)
	if err != nil {
		return result, err
	}

	_, err = img.WriteTo(output)
	if err != nil {
		return result, fmt.Errorf("failed to write output file: %w", err)
	}

	logger := options.Logger
	gaps := img.Gaps()
	unused := int64(0)
	for _, gap := range gaps {
		unused += gap.Len()
		logger.Debug(
			"unused space",
			zap.String("start", fmt.Sprintf("$%X", gap.Start)),
			zap.Int64("length", gap.Len()),
		)
	}
	if len(gaps) > 0 {
		logger.Info("image has gaps", zap.Int("gaps", len(gaps)), zap.Int64("bytes", unused))
	}
	if overwritten := img.Overwritten(); overwritten > 0 {
		logger.Info("bytes written more than once", zap.Int64("count", overwritten))
	}
	logger.Info(
		"image written",
		zap.String("file", outputPath),
		zap.String("size", fmt.Sprintf("0x%X", img.Size())),
		zap.Int("segments", len(result.Segments)),
	)
	return result, nil
}

func writeMap(path string, placements []transcoder.Placement) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			err = multierror.Append(err, closeErr).ErrorOrNil()
		}
	}()

	return segmap.Write(file, placements)
}
