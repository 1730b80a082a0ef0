// Package kiosk registers the display-control operations of the gateway.
// Handlers build the commands; the executor owns authorization, concurrency
// and timeouts. Commands assembled purely from service-side constants are
// marked trusted; anything carrying caller text is screened or left to the
// authorization engine.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/victoralfred/kioskd/executor"
	"github.com/victoralfred/kioskd/registry"
	"github.com/victoralfred/kioskd/validation"
)

// shortTimeout bounds the simple xset/xdotool commands.
const shortTimeout = 5 * time.Second

// Operations holds the dependencies of the kiosk endpoint handlers.
type Operations struct {
	exec     executor.Executor
	screener validation.Screener
	logger   *slog.Logger
}

// NewOperations creates the handler set. screener is the policy's free-text
// token check for argument-only operations.
func NewOperations(exec executor.Executor, screener validation.Screener, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operations{exec: exec, screener: screener, logger: logger}
}

// Register places every kiosk operation into the registry.
func (o *Operations) Register(reg *registry.Registry) error {
	contracts := []registry.Contract{
		{
			Name:       "launch_url",
			Required:   []string{"url"},
			Validators: map[string]validation.Func{"url": validation.URL()},
			Handler:    o.launchURL,
		},
		{
			Name:    "refresh_browser",
			Handler: o.refreshBrowser,
		},
		{
			Name:    "is_display_on",
			Method:  http.MethodGet,
			Handler: o.isDisplayOn,
		},
		{
			Name:       "display_on",
			Optional:   []string{"timeout"},
			Validators: map[string]validation.Func{"timeout": validation.NonNegativeInt()},
			Handler:    o.displayOn,
		},
		{
			Name:    "display_off",
			Handler: o.displayOff,
		},
		{
			Name:    "current_processes",
			Method:  http.MethodGet,
			Handler: o.currentProcesses,
		},
		{
			Name:       "xset",
			Required:   []string{"args"},
			Validators: map[string]validation.Func{"args": validation.FreeText(o.screener)},
			Handler:    o.xset,
		},
		{
			Name:       "run_command",
			Required:   []string{"cmd"},
			Validators: map[string]validation.Func{"cmd": validation.NonEmptyString()},
			Protected:  true,
			Handler:    o.runCommand,
		},
		{
			Name:       "run_commands",
			Required:   []string{"cmds"},
			Validators: map[string]validation.Func{"cmds": validation.StringList()},
			Protected:  true,
			Handler:    o.runCommands,
		},
	}

	for _, c := range contracts {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// run executes a command and folds the outcome into an envelope fragment.
// Timeouts are reported as a failed result, not as an error; policy denials
// and spawn failures propagate for the dispatcher to map.
func (o *Operations) run(ctx context.Context, cmd *executor.Command) (map[string]any, error) {
	result, err := o.exec.Run(ctx, cmd)
	if err != nil {
		if errors.Is(err, executor.ErrTimeout) {
			return map[string]any{"success": false, "error": err.Error()}, nil
		}
		return nil, err
	}
	return resultMap(result), nil
}

func resultMap(r *executor.Result) map[string]any {
	return map[string]any{
		"success":    r.Success(),
		"stdout":     r.Stdout,
		"stderr":     r.Stderr,
		"returncode": r.ExitCode,
	}
}

// launchURL starts the kiosk browser on the given URL.
func (o *Operations) launchURL(ctx context.Context, params registry.Params) (map[string]any, error) {
	url := params["url"].(string)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	cmd := executor.NewCommand(fmt.Sprintf("luakit '%s' &", url)).
		Trusted().
		WithLabel(registry.Op(params)).
		MustBuild()
	result, err := o.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": result["success"], "result": result}, nil
}

// refreshBrowser sends Ctrl+R to the browser window.
func (o *Operations) refreshBrowser(ctx context.Context, params registry.Params) (map[string]any, error) {
	cmd := executor.NewArgvCommand("xdotool", "key", "--clearmodifiers", "ctrl+r").
		Trusted().
		WithTimeout(shortTimeout).
		WithLabel(registry.Op(params)).
		MustBuild()
	result, err := o.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": result["success"]}, nil
}

// isDisplayOn reports whether the monitor is currently on.
func (o *Operations) isDisplayOn(ctx context.Context, params registry.Params) (map[string]any, error) {
	cmd := executor.NewCommand("xset -q | grep -i 'Monitor is'").
		Trusted().
		WithTimeout(shortTimeout).
		WithLabel(registry.Op(params)).
		MustBuild()
	result, err := o.exec.Run(ctx, cmd)
	if err != nil || !result.Success() {
		return map[string]any{"success": false, "error": "failed to query display state"}, nil
	}

	on := strings.Contains(result.Stdout, "Monitor is On")
	o.logger.Info("display state", "on", on)
	return map[string]any{"success": true, "display_on": on}, nil
}

// displayOn turns the display on and optionally configures screen blanking.
// The timeout parameter is the blanking delay in seconds; zero disables
// blanking entirely.
func (o *Operations) displayOn(ctx context.Context, params registry.Params) (map[string]any, error) {
	raw, present := params["timeout"]
	if !present {
		return o.runXsetSequence(ctx, registry.Op(params), "dpms force on")
	}

	blank, _ := validation.AsInt(raw)
	if blank == 0 {
		o.logger.Info("screen blanking disabled")
		return o.runXsetSequence(ctx, registry.Op(params),
			"dpms force on",
			"s off",
			"-dpms",
		)
	}
	o.logger.Info("screen blanking configured", "seconds", blank)
	return o.runXsetSequence(ctx, registry.Op(params),
		"dpms force on",
		fmt.Sprintf("s %d", blank),
		fmt.Sprintf("dpms %d %d %d", blank, blank, blank),
	)
}

// displayOff forces the display off immediately.
func (o *Operations) displayOff(ctx context.Context, params registry.Params) (map[string]any, error) {
	return o.runXsetSequence(ctx, registry.Op(params), "dpms force off")
}

// runXsetSequence executes one or more xset invocations sequentially and
// aggregates success.
func (o *Operations) runXsetSequence(ctx context.Context, label string, argSets ...string) (map[string]any, error) {
	results := make([]map[string]any, 0, len(argSets))
	ok := true
	for _, args := range argSets {
		argv := append([]string{"xset"}, strings.Fields(args)...)
		cmd := executor.NewArgvCommand(argv...).
			Trusted().
			WithTimeout(shortTimeout).
			WithLabel(label).
			MustBuild()
		result, err := o.run(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if success, _ := result["success"].(bool); !success {
			ok = false
		}
		results = append(results, result)
	}

	if len(results) == 1 {
		return map[string]any{"success": ok}, nil
	}
	return map[string]any{"success": ok, "results": results}, nil
}

// currentProcesses reports command execution liveness.
func (o *Operations) currentProcesses(ctx context.Context, params registry.Params) (map[string]any, error) {
	count := o.exec.ActiveCount()
	o.logger.Info("active processes", "count", count, "max", o.exec.Limit())
	return map[string]any{
		"success":           true,
		"current_processes": count,
		"max_allowed":       o.exec.Limit(),
	}, nil
}

// xset runs a caller-supplied xset argument string. The program is fixed and
// the argument text has passed the free-text token screen, so the command is
// dispatched trusted.
func (o *Operations) xset(ctx context.Context, params registry.Params) (map[string]any, error) {
	args := strings.TrimSpace(params["args"].(string))
	cmd := executor.NewCommand("xset " + args).
		Trusted().
		WithTimeout(shortTimeout).
		WithLabel(registry.Op(params)).
		MustBuild()
	result, err := o.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": result["success"], "result": result}, nil
}

// runCommand executes a single user-supplied command through the
// authorization engine.
func (o *Operations) runCommand(ctx context.Context, params registry.Params) (map[string]any, error) {
	line := strings.TrimSpace(params["cmd"].(string))
	cmd, err := executor.NewCommand(line).
		WithTimeout(registry.Timeout(params)).
		WithLabel(registry.Op(params)).
		Build()
	if err != nil {
		return nil, err
	}
	result, err := o.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": result["success"], "result": result}, nil
}

// runCommands executes user-supplied commands sequentially. A timed-out
// command contributes a failed entry and the sequence continues; a policy
// denial aborts the request.
func (o *Operations) runCommands(ctx context.Context, params registry.Params) (map[string]any, error) {
	list := params["cmds"].([]any)
	timeout := registry.Timeout(params)

	results := make([]map[string]any, 0, len(list))
	ok := true
	for _, item := range list {
		line := strings.TrimSpace(item.(string))
		cmd, err := executor.NewCommand(line).
			WithTimeout(timeout).
			WithLabel(registry.Op(params)).
			Build()
		if err != nil {
			return nil, err
		}
		result, err := o.run(ctx, cmd)
		if err != nil {
			return nil, err
		}
		if success, _ := result["success"].(bool); !success {
			ok = false
		}
		results = append(results, result)
	}
	return map[string]any{"success": ok, "results": results}, nil
}
