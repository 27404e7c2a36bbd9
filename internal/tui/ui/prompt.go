package ui

import (
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode tells a command line from a counterparty filter.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
)

// Prompt is the input bar shown in place of the flash line. In filter mode
// every keystroke is reported so the pending list narrows while typing, and
// Esc hands back the filter that was active when the prompt opened.
type Prompt struct {
	*tview.InputField

	mode     PromptMode
	initial  string
	active   bool
	commands []string

	onSubmit func(mode PromptMode, text string)
	onChange func(text string)
	onCancel func(mode PromptMode, initial string)
}

func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(p.done)
	input.SetChangedFunc(p.changed)
	input.SetAutocompleteFunc(func(text string) []string {
		if p.mode != PromptCommand {
			return nil
		}
		return p.complete(text)
	})
	return p
}

// SetCommands lists the command names offered for completion.
func (p *Prompt) SetCommands(names []string) {
	p.commands = append([]string(nil), names...)
	sort.Strings(p.commands)
}

func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) { p.onSubmit = fn }
func (p *Prompt) SetOnChange(fn func(text string))                  { p.onChange = fn }
func (p *Prompt) SetOnCancel(fn func(mode PromptMode, initial string)) {
	p.onCancel = fn
}

// Open shows the prompt in mode, prefilled with initial.
func (p *Prompt) Open(mode PromptMode, initial string) {
	p.active = false
	p.mode = mode
	p.initial = initial
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter by counterparty ")
	}
	p.SetText(initial)
	p.active = true
}

func (p *Prompt) Mode() PromptMode {
	return p.mode
}

func (p *Prompt) done(key tcell.Key) {
	text := strings.TrimSpace(p.GetText())
	p.active = false
	switch key {
	case tcell.KeyEnter:
		p.SetText("")
		// An empty filter clears it; an empty command is ignored.
		if p.onSubmit != nil && (text != "" || p.mode == PromptFilter) {
			p.onSubmit(p.mode, text)
		}
	case tcell.KeyEscape:
		p.SetText("")
		if p.onCancel != nil {
			p.onCancel(p.mode, p.initial)
		}
	}
}

func (p *Prompt) changed(text string) {
	if !p.active || p.mode != PromptFilter || p.onChange == nil {
		return
	}
	p.onChange(strings.TrimSpace(text))
}

// complete returns the commands starting with the typed word. Nothing is
// offered once arguments follow or the word is already a full command.
func (p *Prompt) complete(text string) []string {
	if text == "" || strings.Contains(text, " ") {
		return nil
	}
	var out []string
	for _, name := range p.commands {
		if strings.HasPrefix(name, strings.ToLower(text)) && name != text {
			out = append(out, name)
		}
	}
	return out
}
