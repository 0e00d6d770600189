package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/archquest/quest-engine/internal/catalog"
	"github.com/archquest/quest-engine/pkg/command"
	"github.com/archquest/quest-engine/pkg/events"
	"github.com/archquest/quest-engine/pkg/progress"
	"github.com/archquest/quest-engine/pkg/session"
)

const heroStep = 16 // world units per arrow-key press

var titleCaser = cases.Title(language.English)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	storyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	lockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	panelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2).
			PaddingRight(2)
)

// questItem adapts a catalog quest for the hub list.
type questItem struct {
	id          string
	name        string
	description string
	progress    int
	completed   bool
	locked      bool
	comingSoon  bool
}

func (i questItem) Title() string {
	switch {
	case i.comingSoon:
		return lockedStyle.Render(i.name + "  [coming soon]")
	case i.locked:
		return lockedStyle.Render(i.name + "  [locked]")
	case i.completed:
		return i.name + "  " + badgeStyle.Render("✓")
	case i.progress > 0:
		return fmt.Sprintf("%s  (%d%%)", i.name, i.progress)
	default:
		return i.name
	}
}

func (i questItem) Description() string { return i.description }
func (i questItem) FilterValue() string { return i.name }

// Bus events cross into the Elm loop as messages.
type busEventMsg struct {
	event events.Event
}

type commandDoneMsg struct {
	name   string
	result command.Result
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	catalog *catalog.FileCatalog
	store   *progress.Store
	orch    *session.Orchestrator
	cmdBus  *command.Bus

	questList     list.Model
	storyViewport viewport.Model

	eventCh chan events.Event

	inQuest bool
	loading bool
	status  string
	ready   bool
	width   int
	height  int
}

func NewConsoleUI(cat *catalog.FileCatalog, store *progress.Store, orch *session.Orchestrator, cmdBus *command.Bus, bus *events.Bus) *ConsoleUI {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(lipgloss.Color("205"))
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(lipgloss.Color("212"))

	ql := list.New(nil, delegate, 60, 20)
	ql.Title = "QUEST HUB"
	ql.Styles.Title = titleStyle
	ql.SetShowStatusBar(false)
	ql.SetFilteringEnabled(false)

	vp := viewport.New(60, 20)

	ui := &ConsoleUI{
		catalog:       cat,
		store:         store,
		orch:          orch,
		cmdBus:        cmdBus,
		questList:     ql,
		storyViewport: vp,
		eventCh:       make(chan events.Event, 64),
	}

	// Forward bus traffic into the Elm loop. Emit is synchronous, so
	// drop rather than block if the UI falls behind.
	for _, name := range []string{
		events.LoadingStart, events.LoadingEnd,
		events.QuestStarted, events.QuestComplete,
		events.ChapterChanged, events.HubEntered,
		events.ItemCollected, events.Error,
	} {
		bus.On(name, func(e events.Event) {
			select {
			case ui.eventCh <- e:
			default:
			}
		})
	}

	ui.refreshQuestList()
	return ui
}

func (m *ConsoleUI) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m *ConsoleUI) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return busEventMsg{event: <-m.eventCh}
	}
}

// execute runs a command on the bus off the Elm loop and reports the
// outcome as a message.
func (m *ConsoleUI) execute(cmd command.Command) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{
			name:   cmd.Name(),
			result: m.cmdBus.Execute(context.Background(), cmd),
		}
	}
}

func (m *ConsoleUI) refreshQuestList() {
	ctx := context.Background()
	quests := m.catalog.GetAllQuests()
	items := make([]list.Item, 0, len(quests))
	for _, q := range quests {
		items = append(items, questItem{
			id:          q.ID,
			name:        q.Name,
			description: q.Description,
			progress:    m.store.QuestProgress(ctx, q.ID),
			completed:   m.store.IsQuestCompleted(q.ID),
			locked:      !m.store.IsQuestAvailable(q.ID) && !q.IsComingSoon(),
			comingSoon:  q.IsComingSoon(),
		})
	}
	m.questList.SetItems(items)
}

func (m *ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.questList.SetSize(m.width-4, m.height-6)
		m.storyViewport.Width = m.width - 6
		m.storyViewport.Height = m.height - 10
		m.ready = true
		if m.inQuest {
			m.writeChapterContent()
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case busEventMsg:
		m.handleEvent(msg.event)
		return m, m.waitForEvent()

	case commandDoneMsg:
		res := msg.result
		switch {
		case res.Success:
			// Outcome already arrived (or will) as a bus event.
		case res.Reason == command.ReasonPreconditionFailed:
			m.status = hintStyle.Render("Nothing to do.")
		case res.Err != nil:
			m.status = errorStyle.Render("Error: " + res.Err.Error())
		default:
			m.status = errorStyle.Render(res.Reason)
		}
	}

	var cmd tea.Cmd
	if m.inQuest {
		m.storyViewport, cmd = m.storyViewport.Update(msg)
	} else {
		m.questList, cmd = m.questList.Update(msg)
	}
	return m, cmd
}

func (m *ConsoleUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if !m.inQuest {
		return m.handleHubKey(msg)
	}
	return m.handleQuestKey(msg)
}

func (m *ConsoleUI) handleHubKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "enter":
		item, ok := m.questList.SelectedItem().(questItem)
		if !ok || m.loading {
			return m, nil
		}
		if item.comingSoon || item.locked {
			m.status = lockedStyle.Render("That quest is not available yet.")
			return m, nil
		}
		// A fresh quest starts; a visited one resumes where it left off.
		if m.store.QuestProgress(context.Background(), item.id) > 0 && !item.completed {
			return m, m.execute(&session.ContinueQuestCommand{Orchestrator: m.orch, QuestID: item.id})
		}
		return m, m.execute(&session.StartQuestCommand{Orchestrator: m.orch, QuestID: item.id})
	}

	var cmd tea.Cmd
	m.questList, cmd = m.questList.Update(msg)
	return m, cmd
}

func (m *ConsoleUI) handleQuestKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}

	cells := m.orch.Cells()
	switch msg.String() {
	case "q", "h", "esc":
		return m, m.execute(&session.ReturnToHubCommand{Orchestrator: m.orch})
	case "n", "enter":
		return m, m.execute(&session.AdvanceChapterCommand{Orchestrator: m.orch})
	case " ":
		return m, m.execute(&session.TogglePauseCommand{World: cells.World})
	case "c":
		return m, m.execute(&session.CollectItemCommand{Orchestrator: m.orch})
	case "u":
		if m.cmdBus.Undo(context.Background()) {
			m.writeChapterContent()
		}
		return m, nil
	case "r":
		if m.cmdBus.Redo(context.Background()) {
			m.writeChapterContent()
		}
		return m, nil
	case "up", "down", "left", "right":
		return m, m.moveHero(msg.String())
	}

	var cmd tea.Cmd
	m.storyViewport, cmd = m.storyViewport.Update(msg)
	return m, cmd
}

func (m *ConsoleUI) moveHero(direction string) tea.Cmd {
	cells := m.orch.Cells()
	pos := cells.Hero.Get().Position
	switch direction {
	case "up":
		pos.Y -= heroStep
	case "down":
		pos.Y += heroStep
	case "left":
		pos.X -= heroStep
	case "right":
		pos.X += heroStep
	}
	return m.execute(&session.MoveHeroCommand{Hero: cells.Hero, To: pos, Direction: direction})
}

func (m *ConsoleUI) handleEvent(e events.Event) {
	switch e.Name {
	case events.LoadingStart:
		m.loading = true
		m.status = loadingStyle.Render("Loading...")
	case events.LoadingEnd:
		m.loading = false
		m.status = ""
	case events.QuestStarted, events.ChapterChanged:
		m.inQuest = true
		m.status = ""
		m.writeChapterContent()
	case events.QuestComplete:
		name, _ := e.Payload["quest_name"].(string)
		m.status = badgeStyle.Render(fmt.Sprintf("Quest complete: %s!", name))
		m.writeChapterContent()
	case events.HubEntered:
		m.inQuest = false
		m.refreshQuestList()
	case events.ItemCollected:
		m.status = badgeStyle.Render("Item collected.")
		m.writeChapterContent()
	case events.Error:
		reason, _ := e.Payload["reason"].(string)
		if reason == "" {
			reason = "something went wrong"
		}
		m.status = errorStyle.Render("Error: " + reason)
	}
}

func (m *ConsoleUI) writeChapterContent() {
	snap := m.orch.Navigator().Current()
	if snap == nil || snap.Chapter == nil {
		return
	}
	chapter := snap.Chapter.Chapter
	world := m.orch.Cells().World.Get()
	hero := m.orch.Cells().Hero.Get()
	width := m.storyViewport.Width
	if width <= 0 {
		width = 60
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(snap.Quest.Name) + "\n")
	content.WriteString(hintStyle.Render(fmt.Sprintf("Chapter %d of %d: %s",
		snap.Chapter.Number, snap.Chapter.Total, chapter.Name)) + "\n")
	if world.ServiceContext != "" {
		content.WriteString(badgeStyle.Render("Architecture: "+titleCaser.String(world.ServiceContext)) + "\n")
	}
	content.WriteString("\n")

	if chapter.Story != "" {
		content.WriteString(storyStyle.Render(wordwrap.String(chapter.Story, width)) + "\n\n")
	}

	if chapter.NPC != nil {
		content.WriteString(fmt.Sprintf("%s waits at (%.0f, %.0f).\n",
			badgeStyle.Render(chapter.NPC.Name), chapter.NPC.Position.X, chapter.NPC.Position.Y))
	}
	if chapter.Goal != nil {
		if world.ItemCollected {
			content.WriteString(fmt.Sprintf("You carry the %s.\n", titleCaser.String(strings.ReplaceAll(chapter.Goal.Item, "-", " "))))
		} else {
			content.WriteString(fmt.Sprintf("Find the %s at (%.0f, %.0f), then press c to collect it.\n",
				titleCaser.String(strings.ReplaceAll(chapter.Goal.Item, "-", " ")),
				chapter.Goal.Position.X, chapter.Goal.Position.Y))
		}
	}
	if chapter.HasExitZone() {
		content.WriteString("An exit shimmers ahead. Walk through it (or press n) to move on.\n")
	}

	content.WriteString(fmt.Sprintf("\nHero at (%.0f, %.0f)", hero.Position.X, hero.Position.Y))
	if world.Paused {
		content.WriteString("  " + loadingStyle.Render("[paused]"))
	}
	if world.QuestCompleted {
		content.WriteString("  " + badgeStyle.Render("[quest complete]"))
	}
	content.WriteString("\n")

	m.storyViewport.SetContent(content.String())
	m.storyViewport.GotoTop()
}

func (m *ConsoleUI) View() string {
	if !m.ready {
		return "Loading..."
	}

	var body string
	if m.inQuest {
		body = panelStyle.Render(m.storyViewport.View()) + "\n" +
			hintStyle.Render("  n: advance • arrows: move • space: pause • c: collect • u/r: undo/redo • h: hub • ctrl+c: quit")
	} else {
		footer := fmt.Sprintf("  overall progress: %d%%", m.store.OverallProgress())
		body = panelStyle.Render(m.questList.View()) + "\n" +
			hintStyle.Render("  enter: play • ↑/↓: select • q: quit"+footer)
	}

	if m.status != "" {
		body += "\n  " + m.status
	}
	return body
}
