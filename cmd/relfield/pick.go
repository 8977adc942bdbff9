package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/host"
	"github.com/kalambet/relfield/internal/search"
	"github.com/kalambet/relfield/internal/surface"
)

var pickCmd = &cobra.Command{
	Use:   "pick <issue-key>",
	Short: "Choose the related issue of an issue interactively",
	Long: `Choose the related issue of an issue interactively.

Type to search by summary or key within the field's JQL filter. Use the arrow
keys to move, enter to save the highlighted issue, ctrl+x to clear the field,
and esc to leave without saving.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireField(); err != nil {
			return err
		}
		jc, err := newJiraClient(cfg)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := fieldResolver(cfg, store, local)
		if err != nil {
			return err
		}

		var p *tea.Program
		edit := surface.NewEditSurface(
			host.NewBridge(store, targetFor(cfg, args[0])),
			fieldconfig.NewStore(res),
			jc,
			search.Options{
				Debounce: cfg.Search.Debounce,
				PageSize: cfg.Search.PageSize,
				Listener: func(s search.Snapshot) { p.Send(snapshotMsg(s)) },
			},
		)
		defer edit.Close()

		p = tea.NewProgram(newPickModel(cmd.Context(), edit), tea.WithContext(cmd.Context()))
		final, err := p.Run()
		if err != nil {
			return fmt.Errorf("running picker: %w", err)
		}

		m := final.(pickModel)
		switch {
		case m.err != nil:
			return m.err
		case !m.saved:
			printWarning("Nothing saved")
		case m.savedValue == "":
			printSuccess("Cleared %s on %s", cfg.Field.ID, args[0])
		default:
			printSuccess("Saved %s on %s", m.savedLabel, args[0])
		}
		return nil
	},
}

func init() {
	pickCmd.Flags().Bool("local", false, "read the field configuration from local storage instead of the server")
}

// pickSurface is the part of *surface.EditSurface the picker drives.
type pickSurface interface {
	Load(ctx context.Context) error
	Input(term string)
	Select(sel surface.Selection)
	Clear()
	Submit(ctx context.Context) (string, error)
	State() surface.EditState
}

type (
	loadedMsg    struct{ err error }
	snapshotMsg  search.Snapshot
	submittedMsg struct {
		value string
		err   error
	}
)

type issueItem struct{ search.Item }

func (i issueItem) Title() string       { return i.Label }
func (i issueItem) Description() string { return i.Category }
func (i issueItem) FilterValue() string { return i.Label }

type pickModel struct {
	ctx     context.Context
	surface pickSurface

	input   textinput.Model
	spinner spinner.Model
	list    list.Model

	heading    string
	selection  surface.Selection
	loaded     bool
	loading    bool
	searchErr  string
	err        error
	saved      bool
	savedValue string
	savedLabel string
}

func newPickModel(ctx context.Context, s pickSurface) pickModel {
	input := textinput.New()
	input.Placeholder = "Search by summary or key"
	input.Focus()

	l := list.New(nil, list.NewDefaultDelegate(), 60, 14)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	return pickModel{
		ctx:     ctx,
		surface: s,
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		list:    l,
		heading: fieldconfig.DefaultDisplayName,
		loading: true,
	}
}

func (m pickModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.load())
}

func (m pickModel) load() tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: m.surface.Load(m.ctx)}
	}
}

func (m pickModel) submit() tea.Cmd {
	return func() tea.Msg {
		value, err := m.surface.Submit(m.ctx)
		return submittedMsg{value: value, err: err}
	}
}

func (m pickModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, max(msg.Height-7, 3))
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		st := m.surface.State()
		m.loaded = true
		if st.Configuration.DisplayName != "" {
			m.heading = st.Configuration.DisplayName
		}
		m.selection = st.Selection
		return m, m.applySnapshot(st.Search)

	case snapshotMsg:
		return m, m.applySnapshot(search.Snapshot(msg))

	case submittedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.saved = true
		m.savedValue = msg.value
		m.savedLabel = m.selection.Label
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m pickModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		item, ok := m.list.SelectedItem().(issueItem)
		if !m.loaded || !ok {
			return m, nil
		}
		m.selection = surface.SelectionFromItem(item.Item)
		m.surface.Select(m.selection)
		return m, m.submit()

	case "ctrl+x":
		if !m.loaded {
			return m, nil
		}
		m.selection = surface.Selection{}
		m.surface.Clear()
		return m, m.submit()

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	prev := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.loaded && m.input.Value() != prev {
		m.surface.Input(m.input.Value())
	}
	return m, cmd
}

func (m *pickModel) applySnapshot(s search.Snapshot) tea.Cmd {
	m.loading = s.Loading
	m.searchErr = s.Err
	items := make([]list.Item, len(s.Options))
	for i, opt := range s.Options {
		items[i] = issueItem{opt}
	}
	return m.list.SetItems(items)
}

func (m pickModel) View() string {
	var b strings.Builder

	b.WriteString(colorize(styleBold, m.heading) + "\n\n")
	b.WriteString(m.input.View() + "\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " Searching...\n")
	case m.searchErr != "":
		b.WriteString(colorize(styleError, "Search failed: "+m.searchErr) + "\n")
	default:
		b.WriteString("\n")
	}

	if m.loaded && len(m.list.Items()) == 0 && !m.loading {
		b.WriteString(colorize(styleFaint, "No matching issues") + "\n")
	} else {
		b.WriteString(m.list.View() + "\n")
	}

	current := "none"
	if m.selection.ID != "" {
		current = m.selection.Label
	}
	b.WriteString(colorize(styleFaint, "Current: "+current) + "\n")
	b.WriteString(colorize(styleFaint, "↑/↓ move • enter save • ctrl+x clear • esc cancel"))
	return b.String()
}
