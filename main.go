package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"facecrop/internal/chat"
	"facecrop/internal/crop"
	"facecrop/internal/facematch"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// FACECROP_* variables may come from a .env file in the working directory
	_ = godotenv.Load()

	cliCtx := kong.Parse(
		&args,
		kong.Name("facecrop"),
		kong.Description("Crop and submit photos to the lost and found face-matching service."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "/etc/facecrop.json", "~/.config/facecrop/config.json"),
	)

	setupLogging(args.Verbose, args.LogFile)
	ctx = log.Logger.WithContext(ctx)
	cliCtx.BindTo(ctx, (*context.Context)(nil))

	if err := cliCtx.Run(); err != nil {
		return err
	}
	return nil
}

func setupLogging(verbose bool, logFile string) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	var out io.Writer = zerolog.NewConsoleWriter()
	if logFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 2,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	log.Logger = log.Output(out).Level(level)
	zerolog.DefaultContextLogger = &log.Logger
}

type cliArgs struct {
	Verbose bool   `help:"Enable verbose logging" default:"false" env:"FACECROP_VERBOSE"`
	LogFile string `help:"Also write JSON logs to this file, rotated at 10MB" type:"path" env:"FACECROP_LOG_FILE"`

	Serve serveCmd `cmd:"" default:"withargs" help:"Run the upload forms web app"`
	Crop  cropCmd  `cmd:"" help:"Crop image files in bulk"`
	Chat  chatCmd  `cmd:"" help:"Ask the help assistant a question"`
}

type CropFlags struct {
	Quality int    `help:"JPEG quality of cropped photos (1-100)" default:"95" env:"FACECROP_QUALITY"`
	Aspect  string `help:"Aspect ratio of the crop rectangle, as W:H" default:"1:1" env:"FACECROP_ASPECT"`
	Cascade string `help:"pigo face detection cascade used to focus crops on faces" type:"path" env:"FACECROP_CASCADE"`
}

// finder returns the face finder when a cascade is configured, falling back
// to content-aware cropping.
func (f CropFlags) finder(aspect crop.Aspect) (crop.Finder, error) {
	smart := crop.SmartFinder{Aspect: aspect}
	if f.Cascade == "" {
		return smart, nil
	}
	face, err := crop.LoadFaceFinder(f.Cascade)
	if err != nil {
		return nil, err
	}
	return crop.Finders{face, smart}, nil
}

func (f CropFlags) options() (crop.Options, error) {
	aspect, err := parseAspect(f.Aspect)
	if err != nil {
		return crop.Options{}, err
	}
	if f.Quality < 1 || f.Quality > 100 {
		return crop.Options{}, fmt.Errorf("quality must be between 1 and 100, got %d", f.Quality)
	}
	opts := crop.DefaultOptions()
	opts.Aspect = aspect
	opts.Quality = f.Quality
	return opts, nil
}

func parseAspect(s string) (crop.Aspect, error) {
	var a crop.Aspect
	if _, err := fmt.Sscanf(s, "%d:%d", &a.Width, &a.Height); err != nil {
		return crop.Aspect{}, fmt.Errorf("invalid aspect %q: %w", s, err)
	}
	if a.Width <= 0 || a.Height <= 0 {
		return crop.Aspect{}, fmt.Errorf("invalid aspect %q", s)
	}
	return a, nil
}

type ChatFlags struct {
	OllamaURL   string  `help:"Ollama server used for questions the built-in answers do not cover" env:"FACECROP_OLLAMA_URL" name:"ollama-url"`
	OllamaModel string  `help:"Ollama model name" default:"llama3.2" env:"FACECROP_OLLAMA_MODEL" name:"ollama-model"`
	OllamaRate  float64 `help:"Model questions allowed per second (0 for no limit)" default:"1" env:"FACECROP_OLLAMA_RATE" name:"ollama-rate"`
}

func (f ChatFlags) bot() (*chat.Bot, error) {
	if f.OllamaURL == "" {
		return chat.NewBot(nil), nil
	}
	c, err := chat.NewOllamaCompleter(f.OllamaURL, f.OllamaModel)
	if err != nil {
		return nil, err
	}
	bot := chat.NewBot(c)
	if f.OllamaRate > 0 {
		bot.Limiter = rate.NewLimiter(rate.Limit(f.OllamaRate), 3)
	}
	return bot, nil
}

type serveCmd struct {
	CropFlags `embed:""`
	ChatFlags `embed:""`

	Addr       string        `help:"Address to listen on" default:"localhost:0" env:"FACECROP_ADDR"`
	Open       bool          `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	BackendURL string        `help:"Base URL of the face-recognition backend" default:"http://localhost:8000" env:"FACECROP_BACKEND_URL" name:"backend-url"`
	Timeout    time.Duration `help:"Timeout for backend requests" default:"60s" env:"FACECROP_TIMEOUT"`
	MaxUpload  int64         `help:"Largest accepted photo in bytes" default:"5242880" env:"FACECROP_MAX_UPLOAD"`
	AuthSecret string        `help:"HMAC secret of signed-in user tokens; when set, submissions need a valid bearer token" env:"FACECROP_AUTH_SECRET"`
}

func (cmd *serveCmd) Run(ctx context.Context) error {
	opts, err := cmd.options()
	if err != nil {
		return err
	}
	bot, err := cmd.bot()
	if err != nil {
		return err
	}
	finder, err := cmd.finder(opts.Aspect)
	if err != nil {
		return err
	}
	var verifier *IdentityVerifier
	if cmd.AuthSecret != "" {
		verifier = NewIdentityVerifier(cmd.AuthSecret)
	}

	blobs := crop.NewBlobStore(blobPrefix)
	backend := facematch.NewClient(cmd.BackendURL, cmd.Timeout)
	app := NewWebApp(Config{
		Addr:           cmd.Addr,
		Forms:          NewForms(blobs, opts),
		Blobs:          blobs,
		Backend:        backend,
		Admins:         backend,
		Bot:            bot,
		Finder:         finder,
		Verifier:       verifier,
		MaxUploadBytes: cmd.MaxUpload,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Str("backend", cmd.BackendURL).Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	})

	return app.Run(ctx)
}

type cropCmd struct {
	CropFlags `embed:""`

	RootDir string  `arg:"" help:"Directory the operation filenames are relative to" type:"existingdir"`
	Ops     string  `help:"File with JSON-lines operations, or - for stdin" short:"f" default:"-"`
	All     bool    `help:"Crop every image in the root directory instead of reading operations"`
	Focus   bool    `help:"Center the crops of --all on the face found in each image"`
	Zoom    float64 `help:"Zoom applied with --all (0 keeps the centered or focused zoom)" default:"0"`
	Output  string  `help:"Output directory (default: <root>/output)" type:"path"`
	JSON    bool    `help:"Print the operations in JSON format without executing"`
}

func (cmd *cropCmd) Run(ctx context.Context) error {
	opts, err := cmd.options()
	if err != nil {
		return err
	}
	finder, err := cmd.finder(opts.Aspect)
	if err != nil {
		return err
	}

	var ops Operations
	if cmd.All {
		dir, err := walkImages(cmd.RootDir)
		if err != nil {
			return err
		}
		for _, f := range dir.Files {
			ops = append(ops, Operation{Crop: &CropOperation{
				Filename:  f.Name,
				Selection: Selection{Focus: cmd.Focus, Zoom: cmd.Zoom},
			}})
		}
	} else {
		ops, err = cmd.readOps()
		if err != nil {
			return err
		}
	}

	if cmd.JSON {
		printJSONL(ops)
		return nil
	}

	output := cmd.Output
	if output == "" {
		output = filepath.Join(cmd.RootDir, "output")
	}
	executor := &OperationExecutor{
		BaseDir:   cmd.RootDir,
		OutputDir: output,
		Cropper:   NewSessionCropper(opts, finder),
	}
	return executor.Exec(ctx, ops)
}

func (cmd *cropCmd) readOps() (Operations, error) {
	var r io.Reader = os.Stdin
	if cmd.Ops != "-" {
		f, err := os.Open(cmd.Ops)
		if err != nil {
			return nil, fmt.Errorf("failed to open operations file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return readOperations(r)
}

func readOperations(r io.Reader) (Operations, error) {
	var ops Operations
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var op Operation
		if err := json.Unmarshal([]byte(text), &op); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}
	return ops, nil
}

type chatCmd struct {
	ChatFlags `embed:""`

	Message []string `arg:"" optional:"" help:"Question to ask; prints suggestions when empty"`
}

func (cmd *chatCmd) Run(ctx context.Context) error {
	if len(cmd.Message) == 0 {
		fmt.Println(chat.Greeting(time.Now()))
		for _, q := range chat.Suggestions() {
			fmt.Println("  -", q)
		}
		return nil
	}
	bot, err := cmd.bot()
	if err != nil {
		return err
	}
	reply := bot.Reply(ctx, strings.Join(cmd.Message, " "))
	log.Ctx(ctx).Debug().Str("source", string(reply.Source)).Msg("chat reply")
	fmt.Println(reply.Text)
	return nil
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
