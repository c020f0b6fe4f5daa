package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"quiz-lab/domain"
	"quiz-lab/domain/event"
	"quiz-lab/errors"
	"quiz-lab/projection"
	"quiz-lab/runtime/workers"
	"quiz-lab/services"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

const usage = `Commands:
  name <player>        pick your player name
  list                 show the rooms in the directory
  create <room name>   create a room and enter it as host
  join <room id>       enter a room
  leave                leave the current room
  start                start the game (host only)
  buzz                 claim the current question
  answer <n>           answer with option n (1-based)
  show                 print the current room
  quit                 exit`

// console is a single participant driving the engine from a terminal.
// Commands run on the caller's goroutine; room updates are printed from
// the watcher goroutines through out.
type console struct {
	log         *slog.Logger
	engine      *services.Engine
	sup         *workers.Supervisor
	directory   *projection.Directory
	out         *syncWriter
	sinkTimeout time.Duration

	player    string
	roomID    domain.RoomID
	view      *projection.RoomView
	leaveRoom context.CancelFunc
}

func newConsole(log *slog.Logger, engine *services.Engine, sup *workers.Supervisor, directory *projection.Directory, out io.Writer, player string, sinkTimeout time.Duration) *console {
	return &console{
		log:         log,
		engine:      engine,
		sup:         sup,
		directory:   directory,
		out:         &syncWriter{w: out},
		sinkTimeout: sinkTimeout,
		player:      player,
	}
}

// exec runs one command line. It reports true when the user asked to quit.
func (c *console) exec(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return false, nil
	case "help":
		c.out.println(usage)
	case "name":
		if arg == "" {
			return false, fmt.Errorf("%w: name expects a player name", errors.ErrValidation)
		}
		if c.roomID != "" {
			return false, fmt.Errorf("leave room %s before changing name", c.roomID)
		}
		c.player = arg
		c.out.println(color.FgGreen.Render("You are " + arg))
	case "list":
		return false, c.list(ctx)
	case "create":
		return false, c.create(ctx, arg)
	case "join":
		return false, c.join(ctx, domain.RoomID(arg))
	case "leave":
		return false, c.leave(ctx)
	case "start":
		return false, c.start(ctx)
	case "buzz":
		return false, c.buzz(ctx)
	case "answer":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("%w: answer expects an option number", errors.ErrValidation)
		}
		return false, c.answer(ctx, n-1)
	case "show":
		room, err := c.current(ctx)
		if err != nil {
			return false, err
		}
		c.out.printRoom(room)
	case "quit", "exit":
		return true, c.leave(ctx)
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func (c *console) list(ctx context.Context) error {
	rooms := c.directory.Rooms()
	if !c.directory.Synced() {
		var err error
		if rooms, err = c.engine.Directory.List(ctx); err != nil {
			return err
		}
	}
	c.out.printDirectory(rooms)
	return nil
}

func (c *console) create(ctx context.Context, name string) error {
	if err := c.needPlayer(); err != nil {
		return err
	}
	if c.roomID != "" {
		return fmt.Errorf("%w: already in room %s", errors.ErrState, c.roomID)
	}
	id, err := c.engine.CreateRoom(ctx, name, c.player)
	if err != nil {
		return err
	}
	c.out.println(color.FgGreen.Render(fmt.Sprintf("Room %q created: %s", name, id)))
	c.enter(ctx, id)
	return nil
}

func (c *console) join(ctx context.Context, id domain.RoomID) error {
	if err := c.needPlayer(); err != nil {
		return err
	}
	if c.roomID != "" && c.roomID != id {
		return fmt.Errorf("%w: leave room %s first", errors.ErrState, c.roomID)
	}
	room, err := c.engine.JoinRoom(ctx, id, c.player)
	if err != nil {
		return err
	}
	if c.roomID == "" {
		c.enter(ctx, id)
	}
	c.out.printRoom(room)
	return nil
}

// enter starts the background tasks tied to sitting in a room: the room
// watcher feeding the view and the heartbeat.
func (c *console) enter(ctx context.Context, id domain.RoomID) {
	roomCtx, cancel := context.WithCancel(ctx)
	c.roomID = id
	c.leaveRoom = cancel
	c.view = projection.NewRoomView(id)

	sink := workers.NewEventFanout(c.log, c.sinkTimeout, c.view, &roomPrinter{out: c.out, player: c.player})
	c.sup.Start(roomCtx, workers.NewRoomWatcher(c.log, c.engine, id, sink))
	c.sup.Start(roomCtx, workers.NewHeartbeatWorker(c.log, c.engine, id, c.player))
}

func (c *console) leave(ctx context.Context) error {
	if c.roomID == "" {
		return nil
	}
	id := c.roomID
	c.leaveRoom()
	c.roomID, c.view, c.leaveRoom = "", nil, nil

	if _, err := c.engine.LeaveRoom(ctx, id, c.player); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}
	c.out.println(color.FgYellow.Render("Left room " + string(id)))
	return nil
}

func (c *console) start(ctx context.Context) error {
	if err := c.needRoom(); err != nil {
		return err
	}
	room, err := c.engine.StartGame(ctx, c.roomID, c.player)
	if err != nil {
		return err
	}
	c.view.Reconcile(room)
	return nil
}

// buzz shows the claim right away and takes it back if someone else got
// there first.
func (c *console) buzz(ctx context.Context) error {
	if err := c.needRoom(); err != nil {
		return err
	}
	token, err := c.view.Apply(func(r *domain.Room) { r.CurrentPlayer = c.player })
	if err != nil {
		return err
	}
	room, err := c.engine.BuzzIn(ctx, c.roomID, c.player)
	if err != nil {
		c.view.Rollback(token)
		if errors.Is(err, errors.ErrAlreadyAnswering) {
			c.out.println(color.FgRed.Render("Too late, someone else is answering"))
			return nil
		}
		return err
	}
	c.view.Confirm(token, room)
	c.out.println(color.New(color.BgBlack, color.FgGreen).Render(" Your turn! answer <n> "))
	return nil
}

func (c *console) answer(ctx context.Context, index int) error {
	if err := c.needRoom(); err != nil {
		return err
	}
	res, err := c.engine.ResolveAnswer(ctx, c.roomID, index)
	if err != nil {
		return err
	}
	c.view.Reconcile(res.Room)
	switch {
	case res.Score.Finished:
		c.out.println(color.New(color.BgBlack, color.FgYellow).Render(fmt.Sprintf(" %s wins with %d points! ", res.Score.Winner, res.Score.Score)))
	case res.Correct:
		c.out.println(color.FgGreen.Render(fmt.Sprintf("Correct! %s has %d points", res.Player, res.Score.Score)))
	default:
		c.out.println(color.FgRed.Render("Wrong answer, the question is open again"))
	}
	return nil
}

func (c *console) current(ctx context.Context) (domain.Room, error) {
	if err := c.needRoom(); err != nil {
		return domain.Room{}, err
	}
	room, err := c.view.Snapshot()
	if errors.Is(err, errors.ErrNotFound) {
		return c.engine.GetRoom(ctx, c.roomID)
	}
	return room, err
}

func (c *console) needPlayer() error {
	if c.player == "" {
		return fmt.Errorf("%w: pick a name first with: name <player>", errors.ErrValidation)
	}
	return nil
}

func (c *console) needRoom() error {
	if c.roomID == "" {
		return fmt.Errorf("%w: not in a room", errors.ErrState)
	}
	return nil
}

// roomPrinter announces what changed in the room since the last echo.
type roomPrinter struct {
	out    *syncWriter
	player string
	last   *domain.Room
}

func (p *roomPrinter) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.RoomGone:
		p.out.println(color.FgRed.Render(fmt.Sprintf("Room %s is gone", evt.Room)))
	case event.RoomChanged:
		room := evt.Room
		defer func() { p.last = &room }()
		if p.last == nil {
			return nil
		}
		switch {
		case room.Status != p.last.Status:
			p.out.printRoom(room)
		case room.CurrentPlayer != p.last.CurrentPlayer && room.CurrentPlayer != "" && room.CurrentPlayer != p.player:
			p.out.println(color.FgMagenta.Render(room.CurrentPlayer + " buzzed"))
		case room.CurrentQuestion != nil && (p.last.CurrentQuestion == nil || room.CurrentQuestion.ID != p.last.CurrentQuestion.ID):
			p.out.printRoom(room)
		case len(room.Players) != len(p.last.Players):
			p.out.println(color.FgCyan.Render("Players: " + strings.Join(room.PlayerNames(), ", ")))
		}
	}
	return nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, line)
}

func (s *syncWriter) printDirectory(rooms []domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := tablewriter.NewWriter(s.w)
	table.SetHeader([]string{"ID", "Name", "Host", "Players", "Status"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, r := range rooms {
		table.Append([]string{
			string(r.ID),
			r.Name,
			r.Host,
			fmt.Sprintf("%d/%d", len(r.Players), domain.MaxPlayers),
			string(r.Status),
		})
	}
	table.Render()
}

func (s *syncWriter) printRoom(room domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf(" %s [%s] host %s ", room.Name, room.Status, room.Host)))

	table := tablewriter.NewWriter(s.w)
	table.SetHeader([]string{"Player", "Score"})
	table.SetBorder(false)
	for _, name := range room.PlayerNames() {
		table.Append([]string{name, strconv.Itoa(room.Players[name].Score)})
	}
	table.Render()

	switch {
	case room.Status == domain.Finished:
		_, _ = fmt.Fprintf(s.w, "Winner: %s\n", room.Winner)
	case room.CurrentQuestion != nil:
		_, _ = fmt.Fprintln(s.w, room.CurrentQuestion.Text)
		for i, option := range room.CurrentQuestion.Options {
			_, _ = fmt.Fprintf(s.w, "  %d. %s\n", i+1, option)
		}
		if room.CurrentPlayer != "" {
			_, _ = fmt.Fprintf(s.w, "%s is answering\n", room.CurrentPlayer)
		}
	}
}
