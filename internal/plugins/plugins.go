// Package plugins registers the built-in plugin set with a registry.
package plugins

import (
	"log/slog"

	"github.com/zsiec/tsflow/internal/plugin"
	"github.com/zsiec/tsflow/internal/plugins/count"
	"github.com/zsiec/tsflow/internal/plugins/drop"
	"github.com/zsiec/tsflow/internal/plugins/file"
	"github.com/zsiec/tsflow/internal/plugins/filter"
	"github.com/zsiec/tsflow/internal/plugins/null"
	"github.com/zsiec/tsflow/internal/plugins/srt"
	"github.com/zsiec/tsflow/internal/plugins/udp"
	"github.com/zsiec/tsflow/internal/plugins/until"
)

// RegisterBuiltins adds every built-in plugin to the registry.
func RegisterBuiltins(reg *plugin.Registry) error {
	inputs := map[string]plugin.InputFactory{
		"file": func(log *slog.Logger) plugin.Input { return file.NewInput(log) },
		"null": func(log *slog.Logger) plugin.Input { return null.NewInput(log) },
		"udp":  func(log *slog.Logger) plugin.Input { return udp.NewInput(log) },
		"srt":  func(log *slog.Logger) plugin.Input { return srt.NewInput(log) },
	}
	processors := map[string]plugin.ProcessorFactory{
		"filter": func(log *slog.Logger) plugin.Processor { return filter.New(log) },
		"count":  func(log *slog.Logger) plugin.Processor { return count.New(log) },
		"until":  func(log *slog.Logger) plugin.Processor { return until.New(log) },
	}
	outputs := map[string]plugin.OutputFactory{
		"file": func(log *slog.Logger) plugin.Output { return file.NewOutput(log) },
		"drop": func(log *slog.Logger) plugin.Output { return drop.NewOutput(log) },
		"udp":  func(log *slog.Logger) plugin.Output { return udp.NewOutput(log) },
		"srt":  func(log *slog.Logger) plugin.Output { return srt.NewOutput(log) },
	}

	for name, f := range inputs {
		if err := reg.RegisterInput(name, f); err != nil {
			return err
		}
	}
	for name, f := range processors {
		if err := reg.RegisterProcessor(name, f); err != nil {
			return err
		}
	}
	for name, f := range outputs {
		if err := reg.RegisterOutput(name, f); err != nil {
			return err
		}
	}
	return nil
}
