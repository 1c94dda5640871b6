package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
)

type checkLevel int

const (
	levelInfo checkLevel = iota
	levelOK
	levelWarn
	levelError
)

var levelBadges = map[checkLevel]struct {
	label  string
	colors text.Colors
}{
	levelInfo:  {"INFO", text.Colors{text.FgBlue}},
	levelOK:    {"OK", text.Colors{text.FgGreen}},
	levelWarn:  {"WARN", text.Colors{text.FgYellow}},
	levelError: {"ERROR", text.Colors{text.FgRed}},
}

const statusLabelWidth = 20

// statusPrinter writes sectioned "label: [LEVEL] detail" lines, colored only
// when the output is a terminal.
type statusPrinter struct {
	out      io.Writer
	colorize bool
}

func (p statusPrinter) section(title string) {
	title = strings.TrimSpace(title)
	header := fmt.Sprintf("== %s ==", title)
	if p.colorize {
		header = text.Colors{text.Bold, text.FgBlue}.Sprint(header)
	}
	fmt.Fprintln(p.out, header)
}

func (p statusPrinter) line(label string, level checkLevel, detail string) {
	badge := levelBadges[level]
	tag := "[" + badge.label + "]"
	if p.colorize {
		tag = badge.colors.Sprint(tag)
	}
	if detail != "" {
		tag += " " + detail
	}
	fmt.Fprintf(p.out, "  %s %s\n", text.Pad(label+":", statusLabelWidth, ' '), tag)
}

func (p statusPrinter) note(line string) {
	fmt.Fprintln(p.out, "  "+line)
}

func (p statusPrinter) gap() {
	fmt.Fprintln(p.out)
}
