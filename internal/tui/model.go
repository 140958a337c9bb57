// Package tui drives the scan flow from a terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/zombor/card-scanner/internal/contact"
	"github.com/zombor/card-scanner/internal/scan"
	"github.com/zombor/card-scanner/internal/sheets"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

type captureDoneMsg struct{ err error }

type saveDoneMsg struct{ err error }

// Model is the Bubble Tea model for the scanner
type Model struct {
	ctx  context.Context
	orch *scan.Orchestrator
	snap scan.Snapshot

	url     textinput.Model
	path    textinput.Model
	spinner spinner.Model

	help     viewport.Model
	renderer *glamour.TermRenderer
	showHelp bool

	status string
	width  int
}

// New creates a Model showing the orchestrator's current state.
// ctx bounds the extraction and save commands.
func New(ctx context.Context, orch *scan.Orchestrator) Model {
	snap := orch.Snapshot()

	url := textinput.New()
	url.Placeholder = "https://script.google.com/macros/s/.../exec"
	url.CharLimit = 2048
	url.Width = 60
	url.SetValue(snap.WebhookURL)
	url.Focus()

	path := textinput.New()
	path.Placeholder = "~/Pictures/card.jpg"
	path.CharLimit = 4096
	path.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return Model{
		ctx:      ctx,
		orch:     orch,
		snap:     snap,
		url:      url,
		path:     path,
		spinner:  sp,
		help:     viewport.New(80, 20),
		renderer: renderer,
		width:    80,
	}
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.help.Height = max(msg.Height-6, 5)
		return m, nil

	case captureDoneMsg:
		m.refresh(msg.err)
		return m, nil

	case saveDoneMsg:
		m.refresh(msg.err)
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.snap.Screen {
	case scan.Home:
		m.url, cmd = m.url.Update(msg)
	case scan.Camera:
		m.path, cmd = m.path.Update(msg)
	}
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	// Alerts are modal, the first key only dismisses them
	if m.snap.Alert != nil {
		m.snap = m.orch.DismissAlert()
		return m, nil
	}

	if m.showHelp {
		return m.handleHelpKey(msg)
	}
	m.status = ""

	switch m.snap.Screen {
	case scan.Home:
		return m.handleHomeKey(msg)
	case scan.Camera:
		return m.handleCameraKey(msg)
	case scan.Processing:
		if msg.Type == tea.KeyEsc {
			m.snap = m.orch.Reset()
			m.focus()
		}
		return m, nil
	case scan.Result:
		return m.handleResultKey(msg)
	}
	return m, nil
}

func (m Model) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		m.showHelp = true
		m.status = ""
		m.help.SetContent(m.renderSetup())
		m.help.GotoTop()
		return m, nil

	case tea.KeyEnter:
		m.snap, _ = m.orch.StartScan()
		m.focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.url, cmd = m.url.Update(msg)
	if m.url.Value() != m.snap.WebhookURL {
		m.orch.SetWebhookURL(m.url.Value())
		m.snap = m.orch.Snapshot()
	}
	return m, cmd
}

func (m Model) handleCameraKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.snap, _ = m.orch.CancelCapture()
		m.focus()
		return m, nil

	case tea.KeyEnter:
		location := cleanPath(m.path.Value())
		if location == "" {
			m.status = "Enter the path to a photo of the card"
			return m, nil
		}
		m.snap.Screen = scan.Processing
		return m, tea.Batch(m.spinner.Tick, m.capture(location))
	}

	var cmd tea.Cmd
	m.path, cmd = m.path.Update(msg)
	return m, cmd
}

func (m Model) handleResultKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "s":
		if m.snap.Saving {
			return m, nil
		}
		m.snap.Saving = true
		return m, tea.Batch(m.spinner.Tick, m.save())

	case "r":
		m.snap, _ = m.orch.Retake()
		m.focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleHelpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "c":
		if err := clipboardWriteAll(sheets.AppsScript); err != nil {
			m.status = fmt.Sprintf("Failed to copy script: %v", err)
		} else {
			m.status = "Copied Apps Script code to clipboard"
		}
		return m, nil

	case "esc", "tab", "q":
		m.showHelp = false
		m.status = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.help, cmd = m.help.Update(msg)
	return m, cmd
}

func (m Model) capture(location string) tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		_, err := orch.Capture(ctx, location)
		return captureDoneMsg{err: err}
	}
}

func (m Model) save() tea.Cmd {
	ctx, orch := m.ctx, m.orch
	return func() tea.Msg {
		_, err := orch.Save(ctx)
		return saveDoneMsg{err: err}
	}
}

// refresh reloads the state after a command finished. Failures the
// orchestrator did not raise an alert for end up in the status line. A command
// that found the user already on another screen is dropped like an abandoned one.
func (m *Model) refresh(err error) {
	m.snap = m.orch.Snapshot()
	m.focus()
	if err == nil || m.snap.Alert != nil {
		return
	}
	if errors.Is(err, scan.ErrAbandoned) || errors.Is(err, scan.ErrInvalidTransition) {
		return
	}
	m.status = err.Error()
}

// focus puts the cursor in the input of the current screen
func (m *Model) focus() {
	switch m.snap.Screen {
	case scan.Home:
		m.path.Blur()
		m.url.SetValue(m.snap.WebhookURL)
		m.url.Focus()
	case scan.Camera:
		m.url.Blur()
		if !m.path.Focused() {
			m.path.Reset()
			m.path.Focus()
		}
	default:
		m.url.Blur()
		m.path.Blur()
	}
}

func (m Model) busy() bool {
	return m.snap.Screen == scan.Processing || m.snap.Saving
}

func (m Model) renderSetup() string {
	md := sheets.SetupMarkdown()
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// cleanPath strips the quotes terminals add to dropped files
func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, `"'`)
	return p
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Business Card Scanner"))
	b.WriteString("\n")

	if a := m.snap.Alert; a != nil {
		style := errorBanner
		if a.Kind == scan.AlertSuccess {
			style = successBanner
		}
		b.WriteString(style.Render(labelStyle.Render(a.Title) + "\n" + a.Message))
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString(m.help.View())
		b.WriteString(m.footer("c copy script • ↑/↓ scroll • esc close"))
		return b.String()
	}

	switch m.snap.Screen {
	case scan.Home:
		b.WriteString(labelStyle.Render("Google Apps Script Web App URL"))
		b.WriteString("\n")
		b.WriteString(m.url.View())
		b.WriteString(m.footer("enter scan business card • tab setup instructions • ctrl+c quit"))

	case scan.Camera:
		b.WriteString(labelStyle.Render("Take a Photo"))
		b.WriteString("\nPath to a photo of the card:\n")
		b.WriteString(m.path.View())
		b.WriteString(m.footer("enter capture • esc cancel"))

	case scan.Processing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Processing image...")
		b.WriteString(m.footer("esc cancel"))

	case scan.Result:
		b.WriteString(labelStyle.Render("Extracted Information"))
		b.WriteString("\n")
		for _, row := range m.snap.Fields {
			value := row.Value
			if value == contact.Placeholder {
				value = placeholderStyle.Render(value)
			}
			fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(row.Label+":"), value)
		}
		if m.snap.Saving {
			b.WriteString("\n" + m.spinner.View() + " Saving...")
		}
		b.WriteString(m.footer("s save to Google Sheet • r retake photo"))
	}

	return b.String()
}

func (m Model) footer(keys string) string {
	out := "\n"
	if m.status != "" {
		out += statusStyle.Render(m.status) + "\n"
	}
	return out + footerStyle.Render(keys)
}
