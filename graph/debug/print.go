//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package debug

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/muesli/termenv"
	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

// Printer writes human readable step summaries to a terminal.
type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithColorProfile overrides the color profile detected from the environment.
// termenv.Ascii disables styling.
func WithColorProfile(profile termenv.Profile) PrinterOption {
	return func(p *Printer) {
		p.profile = profile
	}
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{w: w, profile: termenv.ColorProfile()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PrintStepTasks prints the tasks about to run in a step.
func (p *Printer) PrintStepTasks(step int, tasks []*graph.Task) {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("- %s -> %s", p.color(t.Name, "2"), formatInline(t.Input)))
	}
	p.print(fmt.Sprintf("[%d:tasks]", step),
		fmt.Sprintf("Starting step %d with %d %s:", step, len(tasks), plural("task", len(tasks))),
		strings.Join(lines, "\n"))
}

// PrintStepWrites prints the writes of a step to the whitelisted channels,
// grouped by channel in first write order.
func (p *Printer) PrintStepWrites(step int, writes []graph.ChannelWrite, whitelist []string) {
	var order []string
	byChannel := make(map[string][]string)
	for _, w := range writes {
		if !slices.Contains(whitelist, w.Channel) {
			continue
		}
		if _, ok := byChannel[w.Channel]; !ok {
			order = append(order, w.Channel)
		}
		byChannel[w.Channel] = append(byChannel[w.Channel], formatInline(w.Value))
	}
	lines := make([]string, 0, len(order))
	for _, name := range order {
		lines = append(lines, fmt.Sprintf("- %s -> %s", p.color(name, "3"), strings.Join(byChannel[name], ", ")))
	}
	p.print(fmt.Sprintf("[%d:writes]", step),
		fmt.Sprintf("Finished step %d with writes to %d %s:", step, len(order), plural("channel", len(order))),
		strings.Join(lines, "\n"))
}

// PrintStepCheckpoint prints the whitelisted channel values at the end of a
// step as YAML.
func (p *Printer) PrintStepCheckpoint(
	metadata *graph.CheckpointMetadata,
	channels graph.ChannelReader,
	whitelist []string,
) error {
	if metadata == nil {
		return fmt.Errorf("print checkpoint: metadata is required")
	}
	if channels == nil {
		return graph.ErrChannelsRequired
	}
	values, err := channels.ReadChannels(whitelist)
	if err != nil {
		return fmt.Errorf("print checkpoint: %w", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(values); err != nil {
		return fmt.Errorf("print checkpoint: encode values: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("print checkpoint: encode values: %w", err)
	}
	p.print(fmt.Sprintf("[%d:checkpoint]", metadata.Step),
		fmt.Sprintf("State at the end of step %d:", metadata.Step),
		strings.TrimRight(buf.String(), "\n"))
	return nil
}

func (p *Printer) print(tag, header, body string) {
	fmt.Fprintf(p.w, "%s %s\n%s\n", p.color(tag, "4"), p.profile.String(header).Bold(), body)
}

func (p *Printer) color(s, ansi string) string {
	return p.profile.String(s).Foreground(p.profile.Color(ansi)).String()
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// formatInline renders v as single line YAML flow style.
func formatInline(v any) string {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	flow(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(string(out), "\n")
}

func flow(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style |= yaml.FlowStyle
	}
	for _, c := range n.Content {
		flow(c)
	}
}
