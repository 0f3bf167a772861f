package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/render"
	"github.com/kalambet/civicbot/internal/transcript"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with CivicBot.

Commands inside the session:
  /new                      start a new conversation
  /topics                   list quick topics
  /topic <id>               ask about a topic
  /resources [query]        search forms, guides and contacts
  /location [City, State]   show or set your location
  /help                     show this list
  /quit                     leave`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		line := liner.NewLiner()
		line.SetCtrlCAborts(true)
		historyFile := filepath.Join(a.cfg.Storage.DataDir, "chat_history")
		loadLineHistory(line, historyFile)
		defer func() {
			saveLineHistory(line, historyFile)
			line.Close()
		}()

		r := newREPL(a.controller, os.Stdout, render.NewTerminal(os.Stdout, terminalWidth()))
		r.printTranscript()

		for {
			input, err := line.Prompt("you> ")
			if err != nil {
				// Ctrl+C, Ctrl+D and closed stdin all end the session.
				fmt.Println()
				return nil
			}
			if strings.TrimSpace(input) != "" {
				line.AppendHistory(input)
			}
			if r.handle(ctx, input) {
				return nil
			}
		}
	},
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}

func loadLineHistory(line *liner.State, path string) {
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
}

func saveLineHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

// repl executes one line of input at a time against a controller.
type repl struct {
	ctrl *chat.Controller
	out  io.Writer
	term *render.Terminal
}

func newREPL(ctrl *chat.Controller, out io.Writer, t *render.Terminal) *repl {
	return &repl{ctrl: ctrl, out: out, term: t}
}

// handle runs input and reports whether the session should end.
func (r *repl) handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if !strings.HasPrefix(input, "/") {
		r.send(func() (transcript.Message, error) { return r.ctrl.Send(ctx, input) })
		return false
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/?":
		r.printHelp()
	case "/new":
		if err := r.ctrl.NewConversation(); err != nil {
			fmt.Fprintln(r.out, colorize(colorRed, "Could not reset the conversation: "+err.Error()))
			return false
		}
		fmt.Fprintln(r.out, colorize(colorDim, "Started a new conversation."))
		r.printTranscript()
	case "/topics":
		for _, t := range r.ctrl.Catalog().Topics {
			fmt.Fprintf(r.out, "  %s %s  %s\n", t.Icon, colorize(colorBold, t.ID), t.Description)
		}
	case "/topic":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /topic <id>   (see /topics)")
			return false
		}
		r.send(func() (transcript.Message, error) { return r.ctrl.SelectTopic(ctx, arg) })
	case "/resources":
		printResources(r.out, r.ctrl.Catalog().FindResources("", arg))
	case "/location":
		if arg == "" {
			loc := r.ctrl.Location()
			if loc.IsZero() {
				fmt.Fprintln(r.out, "No location set. Usage: /location City, State")
			} else {
				fmt.Fprintf(r.out, "Location: %s\n", loc)
			}
			return false
		}
		loc := chat.ParseLocation(arg)
		r.ctrl.SetLocation(loc)
		fmt.Fprintf(r.out, "Location set to %s\n", loc)
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help for the list.\n", cmd)
	}
	return false
}

func (r *repl) send(fn func() (transcript.Message, error)) {
	fmt.Fprintln(r.out, colorize(colorDim, "CivicBot is typing..."))
	msg, err := fn()
	switch {
	case errors.Is(err, chat.ErrUnknownTopic):
		fmt.Fprintln(r.out, colorize(colorYellow, err.Error()+". Type /topics for the list."))
		return
	case err != nil && msg.Content == "":
		fmt.Fprintln(r.out, colorize(colorRed, err.Error()))
		return
	}
	r.printMessage(msg)
}

func (r *repl) printMessage(m transcript.Message) {
	if m.Sender == transcript.SenderUser {
		fmt.Fprintf(r.out, "%s %s\n", colorize(colorCyan, "you>"), m.Content)
		return
	}
	fmt.Fprintln(r.out, colorize(colorGreen, "civicbot>"))
	fmt.Fprintln(r.out, strings.TrimRight(r.term.Render(m.Content), "\n"))
	fmt.Fprintln(r.out)
}

func (r *repl) printTranscript() {
	for _, m := range r.ctrl.Messages() {
		r.printMessage(m)
	}
}

func (r *repl) printHelp() {
	cmds := [][2]string{
		{"/new", "Start a new conversation"},
		{"/topics", "List quick topics"},
		{"/topic <id>", "Ask about a topic"},
		{"/resources [query]", "Search forms, guides and contacts"},
		{"/location [City, State]", "Show or set your location"},
		{"/quit", "Leave"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", colorize(colorBold, fmt.Sprintf("%-24s", c[0])), c[1])
	}
}
