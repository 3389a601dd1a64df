// Package config defines the runtime options of the stacat command and the
// flag, environment and config-file plumbing that fills them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pithecene-io/stacat/stacat"
)

// EnvPrefix prefixes environment variables that override flags, e.g.
// STACAT_LOG_LEVEL for --log-level.
const EnvPrefix = "STACAT"

// mediaTypesKey is the config-file map of extra media types.
const mediaTypesKey = "media_types"

// Options holds all CLI configuration.
type Options struct {
	ConfigFile      string
	LogLevel        string
	Output          string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	S3Anonymous     bool
	HTTPTimeout     time.Duration
	MediaTypes      map[string]string
	Regrid          bool
	ReadConcurrency int
	ValidateSTAC    bool
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		LogLevel:        "warn",
		Output:          "yaml",
		HTTPTimeout:     30 * time.Second,
		ReadConcurrency: 4,
	}
}

// BindFlags attaches the global flags to fs and returns their names.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "Config file (default $HOME/.stacat.yaml, or $STACAT_CONFIG)")
	names = append(names, "config")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log verbosity: debug, info, warn, or error")
	names = append(names, "log-level")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format: yaml or json")
	names = append(names, "output")
	fs.StringVar(&o.S3Region, "s3-region", o.S3Region, "AWS region for s3:// hrefs")
	names = append(names, "s3-region")
	fs.StringVar(&o.S3Endpoint, "s3-endpoint", o.S3Endpoint, "Custom endpoint for S3-compatible services")
	names = append(names, "s3-endpoint")
	fs.BoolVar(&o.S3PathStyle, "s3-path-style", o.S3PathStyle, "Use path-style S3 addressing")
	names = append(names, "s3-path-style")
	fs.BoolVar(&o.S3Anonymous, "s3-anonymous", o.S3Anonymous, "Send unsigned S3 requests, for public buckets")
	names = append(names, "s3-anonymous")
	fs.DurationVar(&o.HTTPTimeout, "http-timeout", o.HTTPTimeout, "Timeout for http(s):// requests")
	names = append(names, "http-timeout")
	fs.StringToStringVar(&o.MediaTypes, "media-type", o.MediaTypes, "Extra media type mapping, e.g. application/x-foo=parquet")
	names = append(names, "media-type")
	fs.BoolVar(&o.Regrid, "regrid", o.Regrid, "Resample mixed-resolution bands to the finest grid when stacking")
	names = append(names, "regrid")
	fs.IntVar(&o.ReadConcurrency, "read-concurrency", o.ReadConcurrency, "Concurrent member reads while materializing")
	names = append(names, "read-concurrency")
	fs.BoolVar(&o.ValidateSTAC, "validate", o.ValidateSTAC, "Validate STAC documents while opening them")
	names = append(names, "validate")
	return names
}

// Load fills flags of fs that were not set on the command line from the
// environment and the config file, in that order, then validates o.
func (o *Options) Load(fs *pflag.FlagSet) error {
	// Media types contain dots, so nested keys use another delimiter.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	configFile := o.ConfigFile
	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	configureConfigFile(v, configFile)
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	if err := readConfigFile(v, configFile != ""); err != nil {
		return err
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "media-type" || !v.IsSet(f.Name) {
			return
		}
		val := fmt.Sprintf("%v", v.Get(f.Name))
		if val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}

	// Flag mappings win over file mappings for the same media type.
	if fileTypes := v.GetStringMapString(mediaTypesKey); len(fileTypes) > 0 {
		merged := make(map[string]string, len(fileTypes)+len(o.MediaTypes))
		for k, s := range fileTypes {
			merged[k] = s
		}
		for k, s := range o.MediaTypes {
			merged[k] = s
		}
		o.MediaTypes = merged
	}
	return o.Validate()
}

var strategies = map[stacat.Strategy]bool{
	stacat.StrategyRaster:  true,
	stacat.StrategyNetCDF:  true,
	stacat.StrategyParquet: true,
	stacat.StrategyImage:   true,
	stacat.StrategyText:    true,
	stacat.StrategyGeo:     true,
	stacat.StrategyZarr:    true,
}

// Validate checks option values.
func (o *Options) Validate() error {
	switch o.Output {
	case "yaml", "json":
	default:
		return fmt.Errorf("unknown output format %q (expected yaml or json)", o.Output)
	}
	if o.ReadConcurrency < 1 {
		return fmt.Errorf("read-concurrency must be at least 1, got %d", o.ReadConcurrency)
	}
	if o.HTTPTimeout < 0 {
		return fmt.Errorf("http-timeout must not be negative, got %s", o.HTTPTimeout)
	}
	for _, mt := range sortedKeys(o.MediaTypes) {
		if !strategies[stacat.Strategy(o.MediaTypes[mt])] {
			return fmt.Errorf("media type %q: unknown strategy %q", mt, o.MediaTypes[mt])
		}
	}
	return nil
}

// Resolver returns the media type resolver with the configured extra
// mappings.
func (o *Options) Resolver() *stacat.MediaTypeResolver {
	if len(o.MediaTypes) == 0 {
		return stacat.DefaultResolver()
	}
	extra := make(map[string]stacat.Strategy, len(o.MediaTypes))
	for mt, s := range o.MediaTypes {
		extra[mt] = stacat.Strategy(s)
	}
	return stacat.NewMediaTypeResolver(extra)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName(".stacat")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		v.AddConfigPath(home)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "stacat"))
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}
