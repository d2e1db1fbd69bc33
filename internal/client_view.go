package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Falco0906/syncstream/internal/room"
)

const visibleLogLines = 14

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	roomHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	playerBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("141")).Padding(0, 2).MarginTop(1)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	selectedItemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	dirItemStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model TUIModel) View() string {
	switch model.mode {
	case modeMenu:
		return model.renderMenuView()
	case modeNamePrompt:
		return model.renderPromptView("Choose a display name", "Enter the name others will see, then press Enter.")
	case modeJoinPrompt:
		return model.renderPromptView("Join a room", "Enter the room id and press Enter to connect.")
	case modeBrowse:
		return model.renderBrowserView()
	default:
		return model.renderRoomView()
	}
}

func (model TUIModel) renderMenuView() string {
	title := appTitleStyle.Render("SyncStream")
	subtitle := subtitleStyle.Render("Watch videos together from the terminal")

	options := []string{
		renderMenuOption("1", "Join a room"),
		renderMenuOption("2", "Create a room"),
		renderMenuOption("3", "Quit"),
	}

	sections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}
	if notices := model.renderSystemNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, menuHintStyle.Render("Press 1, 2, or 3 to choose an option."))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderPromptView(title, hint string) string {
	sections := []string{appTitleStyle.Render(title), menuHintStyle.Render(hint)}
	if notices := model.renderSystemNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(model.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderRoomView() string {
	role := ""
	if model.isHost() {
		role = " (host)"
	}
	header := roomHeaderStyle.Render(strings.Join([]string{
		"SyncStream",
		fmt.Sprintf("Room %s", model.roomID),
		fmt.Sprintf("User %s%s", model.username, role),
		fmt.Sprintf("%d watching", model.count),
	}, dividerStyle))

	var statusLine string
	switch {
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	case model.connErr != nil:
		statusLine = errorStyle.Render("Connection error: " + model.connErr.Error())
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	lines := model.log
	if len(lines) > visibleLogLines {
		lines = lines[len(lines)-visibleLogLines:]
	}
	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		rendered = append(rendered, model.renderLogLine(line))
	}
	if len(rendered) == 0 {
		rendered = append(rendered, systemMessageStyle.Render("No messages yet. Load a video with /load <url>."))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		statusLine,
		model.renderPlayer(),
		messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rendered...)),
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("/help for commands, Esc to leave"),
	)
}

func (model TUIModel) renderPlayer() string {
	video := model.player.video
	if video == nil {
		return playerBoxStyle.Render(systemMessageStyle.Render("Nothing playing"))
	}
	state := "⏸"
	if model.player.playing {
		state = "▶"
	}
	title := fmt.Sprintf("%s %s  %s", state, video.Name, timestampStyle.Render(formatPosition(model.player.Position(model.now()))))
	source := string(video.Type)
	if video.Type == room.SourceYouTube {
		if id, ok := room.YouTubeID(video.URL); ok {
			source += " " + id
		}
	}
	if video.Size > 0 {
		source += ", " + formatFileSize(video.Size)
	}
	detail := timestampStyle.Render(fmt.Sprintf("%s  [%s]", resolveMediaURL(model.baseURL, video.URL), source))
	return playerBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, detail))
}

func (model TUIModel) renderBrowserView() string {
	b := model.browser
	sections := []string{
		appTitleStyle.Render("Upload a video"),
		menuHintStyle.Render(b.path),
	}
	var rows []string
	if b.err != nil {
		rows = append(rows, errorStyle.Render(b.err.Error()))
	}
	for i, item := range b.items {
		label := item.Name
		style := menuItemStyle
		if item.IsDir {
			label += "/"
			style = dirItemStyle
		} else {
			label = fmt.Sprintf("%s  %s", label, timestampStyle.Render(formatFileSize(item.Size)))
		}
		if i == b.index {
			label = "› " + label
			style = selectedItemStyle
		} else {
			label = "  " + label
		}
		rows = append(rows, style.Render(label))
	}
	if len(rows) == 0 {
		rows = append(rows, systemMessageStyle.Render("No videos here."))
	}
	sections = append(sections,
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)),
		menuHintStyle.Render("↑/↓ to move, Enter to open or upload, Esc to cancel"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

func (model TUIModel) renderSystemNotices() string {
	var notices []string
	for _, line := range model.log {
		if line.system {
			notices = append(notices, systemMessageStyle.Render(line.body))
		}
	}
	if len(notices) == 0 {
		return ""
	}
	if len(notices) > 3 {
		notices = notices[len(notices)-3:]
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, notices...))
}

func (model TUIModel) renderLogLine(line logLine) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", line.at.Format("15:04:05")))
	if line.system {
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", systemMessageStyle.Render(line.body))
	}

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(line.user))
	if line.user == model.username {
		nameStyle = activeUserStyle
	}
	body := messageBodyStyle.Render(strings.ReplaceAll(line.body, "\n", "\n   "))
	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", nameStyle.Render(line.user), ": ", body)
}

func (model TUIModel) isHost() bool {
	if model.hostID == "" {
		return false
	}
	for _, u := range model.users {
		if u.UserID == model.hostID {
			return u.Username == model.username
		}
	}
	return false
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
