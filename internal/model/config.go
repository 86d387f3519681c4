package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeInteractive = "interactive"
	ServiceModeOnce        = "once"
	ServiceModeTimer       = "timer"

	DefaultInterpreter    = "node"
	DefaultTelegramAPIURL = "https://api.telegram.org"
)

var DefaultKeywords = []string{"Swap", "TXN"}

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version     int      `json:"version" yaml:"version"` // fixed 0 for now
	Interpreter string   `json:"interpreter" yaml:"interpreter"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Scripts     []Script `json:"scripts" yaml:"scripts"`
	Telegram    Telegram `json:"telegram" yaml:"telegram"`
	Service     Service  `json:"service" yaml:"service"`
}

// Script is an ordered entry of the scripts list.
type Script struct {
	Name        string  `json:"name" yaml:"name"`
	Path        string  `json:"path" yaml:"path"`
	Interpreter *string `json:"interpreter,omitempty" yaml:"interpreter,omitempty"` // nil => Config.Interpreter
	Timeout     string  `json:"timeout,omitempty" yaml:"timeout,omitempty"`         // time.ParseDuration format
}

// Telegram Bot API settings. Token and chat id are usually passed via
// environment, see Override.
type Telegram struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	APIURL  string `json:"api_url" yaml:"api_url"`
	Token   string `json:"token" yaml:"token"`
	ChatID  string `json:"chat_id" yaml:"chat_id"`
}

type Service struct {
	Mode     string    `json:"mode" yaml:"mode"` // interactive | once | timer
	Verbose  bool      `json:"verbose" yaml:"verbose"`
	Repeat   int       `json:"repeat" yaml:"repeat"` // passes per invocation in once/timer mode
	Schedule *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Schedule for timer mode, exactly one of the fields is expected.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"` // ISO8601, eg PT30M
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	return out, nil
}

// DefaultConfig returns the stock module list run with node.
func DefaultConfig(ctx context.Context) Config {
	slog.DebugContext(ctx, "using default configuration")
	return Config{
		Version:     0,
		Interpreter: DefaultInterpreter,
		Keywords:    append([]string(nil), DefaultKeywords...),
		Scripts: []Script{
			{Name: "Deploy Kontrak", Path: "./modul/deploy.mjs"},
			{Name: "Uniswap", Path: "./modul/uniswap.js"},
			{Name: "Rubic Swap", Path: "./modul/rubic.js"},
			{Name: "Bean Swap", Path: "./modul/bean.js"},
			{Name: "Magma Staking", Path: "./modul/magma.js"},
			{Name: "Izumi Swap", Path: "./modul/izumi.js"},
			{Name: "aPriori Staking", Path: "./modul/apriori.js"},
			{Name: "Bebob Swap", Path: "./modul/bebop.js"},
			{Name: "Monorail", Path: "./modul/mono.js"},
			{Name: "Kitsu", Path: "./modul/kitsu.js"},
			{Name: "AutoSend", Path: "./modul/AutoSend.js"},
		},
		Telegram: Telegram{
			APIURL: DefaultTelegramAPIURL,
		},
		Service: Service{
			Mode:   ServiceModeInteractive,
			Repeat: 1,
		},
	}
}

// Validate checks the constraints which can't be expressed by the schema,
// because they depend on the overrides applied after the file was loaded.
func (c Config) Validate() error {
	var errs []error
	if c.Version != 0 {
		errs = append(errs, fmt.Errorf("config version %d is not supported, expected 0", c.Version))
	}
	if len(c.Scripts) == 0 {
		errs = append(errs, ErrNoScripts)
	}
	for idx, s := range c.Scripts {
		if s.Timeout == "" {
			continue
		}
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("scripts[%d].timeout: %w", idx, err))
		}
	}
	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			errs = append(errs, errors.New("telegram.token: required when telegram is enabled"))
		}
		if c.Telegram.ChatID == "" {
			errs = append(errs, errors.New("telegram.chat_id: required when telegram is enabled"))
		}
	}
	switch c.Service.Mode {
	case ServiceModeInteractive, ServiceModeOnce:
	case ServiceModeTimer:
		if c.Service.Schedule == nil {
			errs = append(errs, errors.New("service.schedule: required in timer mode"))
		} else if _, err := c.Service.Schedule.Definition(); err != nil {
			errs = append(errs, fmt.Errorf("service.schedule: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("service.mode: unsupported value %q", c.Service.Mode))
	}
	if c.Service.Repeat <= 0 {
		errs = append(errs, fmt.Errorf("service.repeat: %w", ErrInvalidRepeat))
	}
	return errors.Join(errs...)
}

// Tasks converts the scripts list into the ordered ScriptTask sequence.
func (c Config) Tasks() ([]ScriptTask, error) {
	if len(c.Scripts) == 0 {
		return nil, ErrNoScripts
	}
	tasks := make([]ScriptTask, 0, len(c.Scripts))
	for idx, s := range c.Scripts {
		task := ScriptTask{
			Name:        s.Name,
			Path:        s.Path,
			Interpreter: c.Interpreter,
		}
		if s.Interpreter != nil {
			task.Interpreter = *s.Interpreter
		}
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, fmt.Errorf("scripts[%d].timeout: %w", idx, err)
			}
			task.Timeout = d
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// expand resolves $VAR references, so secrets can stay out of the file
func expand(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}
