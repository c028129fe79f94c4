package screenrec

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full recorder configuration. It is loaded by LoadConfig from
// defaults, an optional config file, SCREENREC_* environment variables and
// command-line flags, in increasing precedence.
type Config struct {
	VideoSource string `mapstructure:"video_source"`
	Display     int    `mapstructure:"display"`
	Region      string `mapstructure:"region"`

	Output    string `mapstructure:"output"`
	Overwrite bool   `mapstructure:"overwrite"`
	Container string `mapstructure:"container"`

	// Zero width/height records at the capture target's native size.
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	FPS       int    `mapstructure:"fps"`
	ScaleMode string `mapstructure:"scale_mode"`
	PadColor  string `mapstructure:"pad_color"`

	VideoCodec       string  `mapstructure:"video_codec"`
	VideoBitrateMbps float64 `mapstructure:"video_bitrate_mbps"`
	VideoProvider    string  `mapstructure:"video_provider"`

	AudioInput       string `mapstructure:"audio_input"`
	AudioSampleRate  int    `mapstructure:"audio_sample_rate"`
	AudioChannels    int    `mapstructure:"audio_channels"`
	AudioBitrateKbps int    `mapstructure:"audio_bitrate_kbps"`
	AudioChunkMs     int    `mapstructure:"audio_chunk_ms"`
	AudioLossPolicy  string `mapstructure:"audio_loss_policy"`
	AudioProvider    string `mapstructure:"audio_provider"`

	VideoQueueCapacity int           `mapstructure:"video_queue_capacity"`
	AudioQueueCapacity int           `mapstructure:"audio_queue_capacity"`
	MaxInFlight        int           `mapstructure:"max_in_flight"`
	InterleaveWindow   time.Duration `mapstructure:"interleave_window"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout"`

	// Duration limits a recording; zero records until stopped.
	Duration             time.Duration `mapstructure:"duration"`
	RemovePartialOnError bool          `mapstructure:"remove_partial_on_error"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		VideoSource:        "display",
		Output:             "recording.webm",
		FPS:                30,
		ScaleMode:          "fit",
		PadColor:           "#000000",
		VideoCodec:         "vp8",
		VideoBitrateMbps:   8,
		VideoProvider:      "auto",
		AudioInput:         "none",
		AudioSampleRate:    48000,
		AudioChannels:      2,
		AudioBitrateKbps:   128,
		AudioChunkMs:       10,
		AudioLossPolicy:    "video-only",
		AudioProvider:      "auto",
		VideoQueueCapacity: DefaultVideoQueueCapacity,
		AudioQueueCapacity: DefaultAudioQueueCapacity,
		MaxInFlight:        DefaultMaxInFlight,
		InterleaveWindow:   DefaultInterleaveWindow,
		StopTimeout:        DefaultStopTimeout,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// setDefaults registers every key with viper so environment variables and
// flags bind to it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("video_source", cfg.VideoSource)
	v.SetDefault("display", cfg.Display)
	v.SetDefault("region", cfg.Region)
	v.SetDefault("output", cfg.Output)
	v.SetDefault("overwrite", cfg.Overwrite)
	v.SetDefault("container", cfg.Container)
	v.SetDefault("width", cfg.Width)
	v.SetDefault("height", cfg.Height)
	v.SetDefault("fps", cfg.FPS)
	v.SetDefault("scale_mode", cfg.ScaleMode)
	v.SetDefault("pad_color", cfg.PadColor)
	v.SetDefault("video_codec", cfg.VideoCodec)
	v.SetDefault("video_bitrate_mbps", cfg.VideoBitrateMbps)
	v.SetDefault("video_provider", cfg.VideoProvider)
	v.SetDefault("audio_input", cfg.AudioInput)
	v.SetDefault("audio_sample_rate", cfg.AudioSampleRate)
	v.SetDefault("audio_channels", cfg.AudioChannels)
	v.SetDefault("audio_bitrate_kbps", cfg.AudioBitrateKbps)
	v.SetDefault("audio_chunk_ms", cfg.AudioChunkMs)
	v.SetDefault("audio_loss_policy", cfg.AudioLossPolicy)
	v.SetDefault("audio_provider", cfg.AudioProvider)
	v.SetDefault("video_queue_capacity", cfg.VideoQueueCapacity)
	v.SetDefault("audio_queue_capacity", cfg.AudioQueueCapacity)
	v.SetDefault("max_in_flight", cfg.MaxInFlight)
	v.SetDefault("interleave_window", cfg.InterleaveWindow)
	v.SetDefault("stop_timeout", cfg.StopTimeout)
	v.SetDefault("duration", cfg.Duration)
	v.SetDefault("remove_partial_on_error", cfg.RemovePartialOnError)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
}

// LoadConfig reads the configuration. cfgFile may be empty, in which case
// screenrec.yaml is looked up in the working directory and the user config
// directory; a missing file is not an error. Flag names use dashes and map to
// the underscore keys.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("screenrec")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "screenrec"))
		}
	}

	v.SetEnvPrefix("SCREENREC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if v.IsSet(key) {
				if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
					bindErr = err
				}
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks values and cross-field constraints.
func (c Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if st := ParseSourceType(c.VideoSource); st != SourceTypeDisplay && st != SourceTypePattern {
		add("video_source %q: want display or pattern", c.VideoSource)
	}
	if _, err := c.CaptureTarget(); err != nil {
		add("%v", err)
	}
	if c.Width < 0 || c.Height < 0 || (c.Width == 0) != (c.Height == 0) {
		add("width/height %dx%d: set both or neither", c.Width, c.Height)
	}
	if c.FPS <= 0 || c.FPS > 240 {
		add("fps %d out of range 1-240", c.FPS)
	}
	switch c.ScaleMode {
	case "fit", "fill", "stretch":
	default:
		add("scale_mode %q: want fit, fill or stretch", c.ScaleMode)
	}
	if _, err := ParseHexColor(c.PadColor); err != nil {
		add("pad_color: %v", err)
	}
	codec := ParseVideoCodec(c.VideoCodec)
	if codec == VideoCodecUnknown {
		add("video_codec %q: want vp8 or vp9", c.VideoCodec)
	}
	if c.VideoBitrateMbps <= 0 {
		add("video_bitrate_mbps must be positive")
	}
	if p, err := ParseProvider(c.VideoProvider); err != nil || !p.encodesVideo() {
		add("video_provider %q: want auto or libvpx", c.VideoProvider)
	}
	if p, err := ParseProvider(c.AudioProvider); err != nil || !p.encodesAudio() {
		add("audio_provider %q: want auto, libopus or libopus-cgo", c.AudioProvider)
	}
	container, err := c.ResolveContainer()
	if err != nil {
		add("%v", err)
	} else if container == ContainerElementary && codec == VideoCodecVP9 {
		add("container ivf+ogg supports vp8 only")
	}

	switch ParseSourceType(c.AudioInput) {
	case SourceTypeLoopback, SourceTypeMicrophone, SourceTypeTone:
		if c.AudioSampleRate <= 0 || c.AudioChannels < 1 || c.AudioChannels > 2 {
			add("audio %d Hz x %d channels unsupported", c.AudioSampleRate, c.AudioChannels)
		}
		if c.AudioBitrateKbps <= 0 {
			add("audio_bitrate_kbps must be positive")
		}
		if c.AudioChunkMs <= 0 {
			add("audio_chunk_ms must be positive")
		}
	default:
		if !c.AudioDisabled() {
			add("audio_input %q: want loopback, microphone, tone or none", c.AudioInput)
		}
	}
	if _, err := ParseAudioLossPolicy(c.AudioLossPolicy); err != nil {
		add("%v", err)
	}

	if c.VideoQueueCapacity <= 0 || c.AudioQueueCapacity <= 0 || c.MaxInFlight <= 0 {
		add("queue capacities and max_in_flight must be positive")
	}
	if c.StopTimeout <= 0 {
		add("stop_timeout must be positive")
	}
	if c.Duration < 0 {
		add("duration must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// AudioDisabled reports whether audio capture is off.
func (c Config) AudioDisabled() bool {
	s := strings.ToLower(c.AudioInput)
	return s == "" || s == "none"
}

// ResolveContainer returns the configured container, inferring it from the
// output extension when unset.
func (c Config) ResolveContainer() (Container, error) {
	container, err := ParseContainer(c.Container)
	if err != nil {
		return ContainerAuto, err
	}
	if container == ContainerAuto {
		return ContainerForPath(c.Output)
	}
	return container, nil
}

// CaptureTarget parses Display and Region. Region is "x,y,w,h" relative to
// the display; empty means the whole display.
func (c Config) CaptureTarget() (CaptureTarget, error) {
	t := CaptureTarget{Display: c.Display}
	if c.Display < 0 {
		return t, fmt.Errorf("display %d: must not be negative", c.Display)
	}
	if c.Region == "" {
		return t, nil
	}
	parts := strings.Split(c.Region, ",")
	if len(parts) != 4 {
		return t, fmt.Errorf("region %q: want x,y,w,h", c.Region)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return t, fmt.Errorf("region %q: %v", c.Region, err)
		}
		n[i] = v
	}
	if n[2] <= 0 || n[3] <= 0 {
		return t, fmt.Errorf("region %q: empty", c.Region)
	}
	t.Region = image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3])
	return t, nil
}

// ValidateOutputPath checks that the output can be created: the extension
// matches the container, the parent directory exists, the path is not a
// directory, and an existing file is only replaced with Overwrite.
func (c Config) ValidateOutputPath() error {
	if c.Output == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalidConfig)
	}
	container, err := c.ResolveContainer()
	if err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(c.Output))
	switch container {
	case ContainerWebM:
		if ext != ".webm" && ext != ".mkv" {
			return fmt.Errorf("%w: output %q: webm container needs a .webm or .mkv extension", ErrInvalidConfig, c.Output)
		}
	case ContainerElementary:
		if ext != ".ivf" {
			return fmt.Errorf("%w: output %q: ivf+ogg container needs a .ivf extension", ErrInvalidConfig, c.Output)
		}
	}

	dir := filepath.Dir(c.Output)
	if fi, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: output directory: %v", ErrInvalidConfig, err)
	} else if !fi.IsDir() {
		return fmt.Errorf("%w: output directory %q is not a directory", ErrInvalidConfig, dir)
	}

	paths := []string{c.Output}
	if container == ContainerElementary {
		video, audio := elementaryPaths(c.Output)
		paths = []string{video, audio}
	}
	for _, p := range paths {
		fi, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: output %q: %v", ErrInvalidConfig, p, err)
		}
		if fi.IsDir() {
			return fmt.Errorf("%w: output %q is a directory", ErrInvalidConfig, p)
		}
		if !c.Overwrite {
			return fmt.Errorf("%w: output %q exists (use --overwrite)", ErrInvalidConfig, p)
		}
	}
	return nil
}
