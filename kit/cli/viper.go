package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option
type Opt struct {
	DestP   interface{} // pointer to the destination
	Flag    string
	Default interface{}
	Desc    string
}

// Program parses CLI options
type Program struct {
	// Run is invoked by cobra on execute.
	Run func() error
	// Name is the name of the program in help usage and the env var prefix.
	Name string
	// Opts are the command line/env var options to the program
	Opts []Opt
}

// NewCommand creates a new cobra command to be executed that respects env vars
// and an optional config file.
//
// Uses the upper-case version of the program's name as a prefix to all
// environment variables. The config file is taken from <NAME>_CONFIG_PATH,
// falling back to a config.{toml,yaml,json} in the working directory.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:  p.Name,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return p.Run()
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := initializeConfig(v); err != nil {
		return nil, err
	}
	if err := BindOptions(v, cmd.Flags(), p.Opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

func initializeConfig(v *viper.Viper) error {
	configPath := v.GetString("CONFIG_PATH")
	if configPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		for _, ext := range []string{"toml", "yaml", "yml", "json"} {
			candidate := filepath.Join(wd, "config."+ext)
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
		if configPath == "" {
			return nil
		}
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config %q: %w", configPath, err)
	}
	return nil
}

// BindOptions adds opts to the specified flag set and automatically
// registers those options with viper. Values already known to viper, from
// the environment or the config file, replace the declared defaults.
func BindOptions(v *viper.Viper, flags *pflag.FlagSet, opts []Opt) error {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			if v.IsSet(o.Flag) {
				d = v.GetString(o.Flag)
			}
			flags.StringVar(destP, o.Flag, d, o.Desc)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			if v.IsSet(o.Flag) {
				d = v.GetInt(o.Flag)
			}
			flags.IntVar(destP, o.Flag, d, o.Desc)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			if v.IsSet(o.Flag) {
				d = v.GetBool(o.Flag)
			}
			flags.BoolVar(destP, o.Flag, d, o.Desc)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			if v.IsSet(o.Flag) {
				d = v.GetDuration(o.Flag)
			}
			flags.DurationVar(destP, o.Flag, d, o.Desc)
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			if v.IsSet(o.Flag) {
				d = v.GetStringSlice(o.Flag)
			}
			flags.StringSliceVar(destP, o.Flag, d, o.Desc)
		case *zapcore.Level:
			var d zapcore.Level
			if o.Default != nil {
				d = o.Default.(zapcore.Level)
			}
			if v.IsSet(o.Flag) {
				if err := d.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("flag %q: %w", o.Flag, err)
				}
			}
			LevelVar(flags, destP, o.Flag, d, o.Desc)
		case pflag.Value:
			if o.Default != nil {
				if err := destP.Set(fmt.Sprint(o.Default)); err != nil {
					return fmt.Errorf("flag %q: %w", o.Flag, err)
				}
			}
			if v.IsSet(o.Flag) {
				if err := destP.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("flag %q: %w", o.Flag, err)
				}
			}
			flags.Var(destP, o.Flag, o.Desc)
		default:
			return fmt.Errorf("unknown destination type %T for flag %q", o.DestP, o.Flag)
		}
		if err := v.BindPFlag(o.Flag, flags.Lookup(o.Flag)); err != nil {
			return err
		}
	}
	return nil
}
