package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/Falco0906/syncstream/internal/gateway"
	"github.com/Falco0906/syncstream/internal/room"
)

const (
	maxLogLines     = 200
	reconnectDelay  = 2 * time.Second
	playbackRefresh = time.Second
)

// TUIModel is the bubbletea state for the watch client.
type TUIModel struct {
	textInput     textinput.Model
	log           []logLine
	serverURL     string
	baseURL       string
	roomID        string
	username      string
	conn          *websocket.Conn
	writeMutex    *sync.Mutex
	isConnected   bool
	connErr       error
	mode          appMode
	pendingAction actionType

	users   []room.ParticipantView
	hostID  string
	count   int
	player  playback
	browser fileBrowser
	now     func() time.Time
}

type logLine struct {
	at     time.Time
	user   string
	body   string
	system bool
}

type fileBrowser struct {
	path  string
	items []FileItem
	index int
	err   error
}

type (
	connectedMsg     struct{ conn *websocket.Conn }
	disconnectedMsg  struct{ err error }
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	serverEventMsg   struct {
		event string
		data  json.RawMessage
	}
	roomCreatedMsg struct {
		id  string
		err error
	}
	roomProbeMsg struct {
		id  string
		err error
	}
	uploadDoneMsg struct {
		resp uploadResponse
		err  error
	}
	sendFailedMsg struct{ err error }
	tickMsg       time.Time
)

type appMode int

const (
	modeMenu appMode = iota
	modeNamePrompt
	modeJoinPrompt
	modeRoom
	modeBrowse
)

type actionType int

const (
	actionNone actionType = iota
	actionJoin
	actionCreate
)

// NewTUIModel builds the client. With a room id it connects straight away,
// otherwise it opens on the menu.
func NewTUIModel(serverURL, roomID, username string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 500

	if username == "" {
		username = defaultUsername()
	}
	baseURL, err := httpBaseFromWSURL(serverURL)

	model := &TUIModel{
		textInput:  input,
		log:        make([]logLine, 0, 64),
		serverURL:  serverURL,
		baseURL:    baseURL,
		roomID:     roomID,
		username:   username,
		writeMutex: &sync.Mutex{},
		now:        time.Now,
	}
	if err != nil {
		model.connErr = err
	}
	if roomID == "" {
		model.enterMenu()
	} else {
		model.enterRoom()
	}
	return model
}

func defaultUsername() string {
	if user := os.Getenv("SYNCSTREAM_USER"); user != "" {
		return user
	}
	return room.DefaultDisplayName()
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeRoom {
		return tea.Batch(model.connectCmd(), model.tickCmd())
	}
	return nil
}

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			model.closeConn()
			return model, tea.Quit
		}
		return model.updateKey(msg)

	case connectedMsg:
		model.conn = msg.conn
		model.isConnected = true
		model.connErr = nil
		return model, model.readOnceCmd(msg.conn)

	case serverEventMsg:
		model.applyServerEvent(msg.event, msg.data)
		return model, model.readOnceCmd(model.conn)

	case disconnectedMsg:
		model.isConnected = false
		model.connErr = msg.err
		model.closeConn()
		if model.inRoom() {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case connectFailedMsg:
		model.connErr = msg.err
		if model.inRoom() {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.inRoom() && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case sendFailedMsg:
		model.notice("Send failed: " + msg.err.Error())
		return model, nil

	case roomCreatedMsg:
		if msg.err != nil {
			model.enterMenu()
			model.notice(fmt.Sprintf("Could not create room: %v", msg.err))
			return model, nil
		}
		model.roomID = msg.id
		model.enterRoom()
		model.notice(model.inviteText())
		return model, tea.Batch(model.connectCmd(), model.tickCmd())

	case roomProbeMsg:
		if errors.Is(msg.err, errRoomNotFound) {
			model.notice("Room not found. Try again or create a room.")
			return model, nil
		}
		if msg.err != nil {
			model.notice(fmt.Sprintf("Error checking room: %v", msg.err))
			return model, nil
		}
		model.roomID = msg.id
		model.enterRoom()
		return model, tea.Batch(model.connectCmd(), model.tickCmd())

	case uploadDoneMsg:
		if msg.err != nil {
			model.notice("Upload failed: " + msg.err.Error())
			return model, nil
		}
		// the server does not echo file-uploaded back, so load it here
		model.player.Load(room.VideoDescriptor{
			URL:      msg.resp.VideoURL,
			Name:     msg.resp.OriginalName,
			Type:     room.SourceUploadedFile,
			Size:     msg.resp.Size,
			LoadedBy: model.username,
			LoadedAt: model.now().UnixMilli(),
		})
		model.notice(fmt.Sprintf("Uploaded %s (%s)", msg.resp.OriginalName, formatFileSize(msg.resp.Size)))
		return model, model.sendEventCmd(gateway.EventFileUploaded, gateway.FileUploadedRequest{
			VideoURL:     msg.resp.VideoURL,
			OriginalName: msg.resp.OriginalName,
			Size:         msg.resp.Size,
		})

	case tickMsg:
		if model.inRoom() {
			return model, model.tickCmd()
		}
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch model.mode {
	case modeMenu:
		switch msg.String() {
		case "1", "j", "J":
			return model, model.enterNamePrompt(actionJoin)
		case "2", "c", "C":
			return model, model.enterNamePrompt(actionCreate)
		case "3", "q", "Q", "esc":
			return model, tea.Quit
		}
		return model, nil

	case modeNamePrompt:
		switch msg.Type {
		case tea.KeyEsc:
			model.enterMenu()
			return model, nil
		case tea.KeyEnter:
			name := strings.TrimSpace(model.textInput.Value())
			if name == "" {
				model.notice("Display name cannot be empty.")
				return model, nil
			}
			model.username = name
			next := model.pendingAction
			model.pendingAction = actionNone
			switch next {
			case actionJoin:
				model.mode = modeJoinPrompt
				model.setInput("Enter room id…", "room> ", "")
				return model, model.textInput.Focus()
			case actionCreate:
				return model, model.createRoomCmd()
			}
			model.enterMenu()
			return model, nil
		}

	case modeJoinPrompt:
		switch msg.Type {
		case tea.KeyEsc:
			model.enterMenu()
			return model, nil
		case tea.KeyEnter:
			id := strings.TrimSpace(model.textInput.Value())
			if id == "" {
				return model, nil
			}
			return model, model.probeRoomCmd(id)
		}

	case modeBrowse:
		return model.updateBrowser(msg)

	case modeRoom:
		switch msg.Type {
		case tea.KeyEsc:
			model.closeConn()
			return model, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(model.textInput.Value())
			model.textInput.SetValue("")
			if line == "" {
				return model, nil
			}
			if strings.HasPrefix(line, "/") {
				return model, model.runCommand(line)
			}
			if !model.isConnected {
				model.notice("Not connected yet.")
				return model, nil
			}
			return model, model.sendEventCmd(gateway.EventChatMessage, line)
		}
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(msg)
	return model, cmd
}

func (model *TUIModel) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	b := &model.browser
	switch msg.String() {
	case "esc", "q":
		model.mode = modeRoom
		return model, model.textInput.Focus()
	case "up", "k":
		if b.index > 0 {
			b.index--
		}
	case "down", "j":
		if b.index < len(b.items)-1 {
			b.index++
		}
	case "enter":
		if len(b.items) == 0 {
			return model, nil
		}
		item := b.items[b.index]
		if item.IsDir {
			model.openDirectory(item.Path)
			return model, nil
		}
		model.mode = modeRoom
		model.notice(fmt.Sprintf("Uploading %s…", item.Name))
		return model, tea.Batch(model.textInput.Focus(), model.uploadCmd(item.Path))
	}
	return model, nil
}

// runCommand handles slash commands typed in the room.
func (model *TUIModel) runCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/quit", "/exit":
		model.closeConn()
		return tea.Quit
	case "/help":
		model.notice("/play [sec]  /pause [sec]  /seek <sec>  /load <url> [name]  /upload <path>  /browse  /users  /quit")
		return nil
	case "/users":
		model.notice(model.usersText())
		return nil
	case "/browse":
		model.openDirectory(getDefaultBrowsePath())
		model.mode = modeBrowse
		model.textInput.Blur()
		return nil
	case "/upload":
		if len(args) == 0 {
			model.notice("Usage: /upload <path>")
			return nil
		}
		path := strings.Join(args, " ")
		model.notice(fmt.Sprintf("Uploading %s…", path))
		return model.uploadCmd(path)
	case "/load":
		if len(args) == 0 {
			model.notice("Usage: /load <url> [name]")
			return nil
		}
		return model.sendEventCmd(gateway.EventVideoURLShared, gateway.VideoURLRequest{
			URL:  args[0],
			Name: strings.Join(args[1:], " "),
		})
	case "/play", "/pause", "/seek":
		action := room.Action(strings.TrimPrefix(name, "/"))
		at, hasAt, err := parseSeconds(args)
		if err != nil {
			model.notice(err.Error())
			return nil
		}
		if action == room.ActionSeek && !hasAt {
			model.notice("Usage: /seek <seconds>")
			return nil
		}
		if model.player.video == nil {
			model.notice("No video loaded. Use /load or /upload first.")
			return nil
		}
		pos := model.player.Local(action, at, hasAt, model.now())
		return model.sendEventCmd(gateway.EventVideoAction, gateway.VideoActionRequest{
			Action:      action,
			CurrentTime: pos,
		})
	}
	model.notice("Unknown command " + name + ". Try /help.")
	return nil
}

func parseSeconds(args []string) (float64, bool, error) {
	if len(args) == 0 {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil || v < 0 {
		return 0, false, fmt.Errorf("invalid position %q", args[0])
	}
	return v, true, nil
}

// applyServerEvent folds one server event into the model.
func (model *TUIModel) applyServerEvent(event string, data json.RawMessage) {
	now := model.now()
	switch event {
	case room.EventRoomState:
		var snap room.Snapshot
		if json.Unmarshal(data, &snap) != nil {
			return
		}
		model.roomID = snap.RoomID
		model.hostID = snap.HostID
		model.users = snap.Users
		model.count = len(snap.Users)
		model.player.Restore(snap, now)
		model.notice(fmt.Sprintf("Joined room %s as %s", snap.RoomID, model.username))

	case room.EventUserJoined:
		var ref room.UserRef
		if json.Unmarshal(data, &ref) != nil {
			return
		}
		model.users = append(model.users, room.ParticipantView{UserID: ref.UserID, Username: ref.Username})
		model.notice(ref.Username + " joined")

	case room.EventUserLeft:
		var ref room.UserRef
		if json.Unmarshal(data, &ref) != nil {
			return
		}
		for i, u := range model.users {
			if u.UserID == ref.UserID {
				model.users = append(model.users[:i], model.users[i+1:]...)
				break
			}
		}
		model.notice(ref.Username + " left")

	case room.EventUserCountUpdate:
		var n int
		if json.Unmarshal(data, &n) == nil {
			model.count = n
		}

	case room.EventNewHost:
		var hc room.HostChange
		if json.Unmarshal(data, &hc) != nil {
			return
		}
		model.hostID = hc.HostID
		for i := range model.users {
			model.users[i].IsHost = model.users[i].UserID == hc.HostID
			if model.users[i].IsHost {
				model.notice(model.users[i].Username + " is now the host")
			}
		}

	case room.EventVideoSync:
		var state room.PlaybackState
		if json.Unmarshal(data, &state) != nil {
			return
		}
		moved := model.player.Apply(state, now)
		text := fmt.Sprintf("%s %s at %s", state.Username, pastTense(state.Action), formatPosition(state.CurrentTime))
		if moved {
			text += " (synced)"
		}
		model.notice(text)

	case room.EventVideoLoaded:
		var video room.VideoDescriptor
		if json.Unmarshal(data, &video) != nil {
			return
		}
		model.player.Load(video)
		model.notice(fmt.Sprintf("%s loaded %s", video.LoadedBy, video.Name))

	case room.EventChatMessage:
		var chat room.ChatEvent
		if json.Unmarshal(data, &chat) != nil {
			return
		}
		model.appendLog(logLine{
			at:     time.UnixMilli(chat.Timestamp),
			user:   chat.Username,
			body:   chat.Message,
			system: chat.UserID == systemUser,
		})
	}
}

func pastTense(a room.Action) string {
	switch a {
	case room.ActionPlay:
		return "played"
	case room.ActionPause:
		return "paused"
	default:
		return "seeked"
	}
}

func (model *TUIModel) usersText() string {
	if len(model.users) == 0 {
		return "No one is here."
	}
	names := make([]string, 0, len(model.users))
	for _, u := range model.users {
		name := u.Username
		if u.UserID == model.hostID {
			name += " (host)"
		}
		names = append(names, name)
	}
	return fmt.Sprintf("%d watching: %s", model.count, strings.Join(names, ", "))
}

func (model *TUIModel) inviteText() string {
	var sb strings.Builder
	sb.WriteString("Room ")
	sb.WriteString(model.roomID)
	sb.WriteString(" created. Invite others with:\n  syncstream watch ")
	sb.WriteString(model.roomID)
	if model.baseURL != "" {
		sb.WriteString("\nBrowser: ")
		sb.WriteString(model.baseURL)
		sb.WriteString("/room/")
		sb.WriteString(model.roomID)
	}
	return sb.String()
}

func (model *TUIModel) notice(body string) {
	model.appendLog(logLine{at: model.now(), user: systemUser, body: body, system: true})
}

func (model *TUIModel) appendLog(line logLine) {
	model.log = append(model.log, line)
	if len(model.log) > maxLogLines {
		model.log = model.log[len(model.log)-maxLogLines:]
	}
}

func (model *TUIModel) inRoom() bool {
	return model.mode == modeRoom || model.mode == modeBrowse
}

func (model *TUIModel) enterMenu() {
	model.mode = modeMenu
	model.pendingAction = actionNone
	model.textInput.Blur()
	model.setInput("", "", "")
}

func (model *TUIModel) enterNamePrompt(action actionType) tea.Cmd {
	model.pendingAction = action
	model.mode = modeNamePrompt
	model.setInput("Enter display name…", "name> ", model.username)
	return model.textInput.Focus()
}

func (model *TUIModel) enterRoom() {
	model.mode = modeRoom
	model.setInput("Message, or /help", "> ", "")
	model.textInput.Focus()
}

func (model *TUIModel) setInput(placeholder, prompt, value string) {
	model.textInput.Placeholder = placeholder
	model.textInput.Prompt = prompt
	model.textInput.SetValue(value)
}

func (model *TUIModel) openDirectory(path string) {
	items, err := browseDirectory(path)
	model.browser = fileBrowser{path: path, items: items, err: err}
}

func (model *TUIModel) closeConn() {
	if model.conn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	model.writeMutex.Unlock()
	_ = model.conn.Close()
	model.conn = nil
}

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	return tea.Tick(reconnectDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

func (model *TUIModel) tickCmd() tea.Cmd {
	return tea.Tick(playbackRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// connectCmd dials the server and sends join-room before reading.
func (model *TUIModel) connectCmd() tea.Cmd {
	serverURL, roomID, name := model.serverURL, model.roomID, model.username
	mu := model.writeMutex
	return func() tea.Msg {
		conn, _, err := websocket.DefaultDialer.Dial(serverURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		join, err := encodeEnvelope(gateway.EventJoinRoom, gateway.JoinRequest{RoomID: roomID, DisplayName: name})
		if err == nil {
			mu.Lock()
			err = conn.WriteMessage(websocket.TextMessage, join)
			mu.Unlock()
		}
		if err != nil {
			_ = conn.Close()
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

func (model *TUIModel) createRoomCmd() tea.Cmd {
	base := model.baseURL
	return func() tea.Msg {
		resp, err := apiCreateRoom(context.Background(), base)
		return roomCreatedMsg{id: resp.RoomID, err: err}
	}
}

// probeRoomCmd checks the room exists without joining it.
func (model *TUIModel) probeRoomCmd(id string) tea.Cmd {
	base := model.baseURL
	return func() tea.Msg {
		_, err := apiRoomInfo(context.Background(), base, id)
		return roomProbeMsg{id: id, err: err}
	}
}

func (model *TUIModel) uploadCmd(path string) tea.Cmd {
	base, roomID, name := model.baseURL, model.roomID, model.username
	return func() tea.Msg {
		resp, err := apiUploadVideo(context.Background(), base, path, roomID, name)
		return uploadDoneMsg{resp: resp, err: err}
	}
}

// readOnceCmd reads until one event frame arrives. Update schedules it again.
func (model *TUIModel) readOnceCmd(conn *websocket.Conn) tea.Cmd {
	if conn == nil {
		return nil
	}
	return func() tea.Msg {
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return disconnectedMsg{err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var env gateway.Envelope
			if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
				continue
			}
			return serverEventMsg{event: env.Event, data: env.Data}
		}
	}
}

func (model *TUIModel) sendEventCmd(event string, payload any) tea.Cmd {
	conn, mu := model.conn, model.writeMutex
	return func() tea.Msg {
		if conn == nil {
			return sendFailedMsg{err: errors.New("not connected")}
		}
		encoded, err := encodeEnvelope(event, payload)
		if err != nil {
			return sendFailedMsg{err: err}
		}
		mu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, encoded)
		mu.Unlock()
		if err != nil {
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(gateway.Envelope{Event: event, Data: data})
}

// RunClient runs the watch TUI until the user quits.
func RunClient(serverURL, roomID, username string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, roomID, username), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
