package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/aichat/internal/model/chat"
	"github.com/zhouzirui/aichat/internal/model/persona"
	chatService "github.com/zhouzirui/aichat/internal/service/chat"
)

func newChatCmd(deps *Dependencies) *cobra.Command {
	var sessionFlag, personaFlag string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Each line you type is sent as one message and
the reply is streamed as it arrives. Press Ctrl-C during a reply to stop it; the text
received so far is kept. Type /help for the list of commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := deps.Build(cmd.Context())
			if err != nil {
				return err
			}

			r := newREPL(core.Controller, core.Personas, cmd.OutOrStdout())
			if sessionFlag != "" {
				if err := core.Controller.LoadSession(sessionFlag); err != nil {
					return fmt.Errorf("failed to load session %s: %w", sessionFlag, err)
				}
			}
			if personaFlag != "" {
				if err := r.usePreset(personaFlag); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			stopSignals := r.cancelOnInterrupt(ctx, cancel)
			defer stopSignals()

			return r.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Resume a saved session")
	cmd.Flags().StringVarP(&personaFlag, "persona", "p", "", "Start with a preset persona (see `aichat personas`)")
	return cmd
}

// repl drives one controller from line-oriented input.
type repl struct {
	ctrl     *chatService.Controller
	personas persona.Store
	out      io.Writer
	printed  int
}

func newREPL(ctrl *chatService.Controller, personas persona.Store, out io.Writer) *repl {
	return &repl{ctrl: ctrl, personas: personas, out: out}
}

// cancelOnInterrupt makes Ctrl-C stop the reply in progress, or leave the
// loop when nothing is streaming.
func (r *repl) cancelOnInterrupt(ctx context.Context, quit context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if r.ctrl.Cancel() {
					continue
				}
				quit()
				return
			}
		}
	}()
	return func() { signal.Stop(sigCh) }
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.banner()
	for {
		r.prompt()
		select {
		case <-ctx.Done():
			r.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (r *repl) handleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "/") {
		return r.command(trimmed)
	}

	r.printed = 0
	r.printf("%s: ", assistantLabel(r.ctrl.Snapshot().PersonaName))

	// Turn failures arrive as error events; only rejections are printed here.
	err := r.ctrl.Submit(ctx, line, r.listen)
	if errors.Is(err, chatService.ErrBusy) {
		r.errorf("%v", err)
	}
	if err == nil && r.printed == 0 {
		r.printf("\n")
	}
	return false
}

func (r *repl) listen(ev chatService.Event) {
	switch ev.Type {
	case chatService.EventPartialTextUpdated:
		if len(ev.Text) > r.printed {
			r.printf("%s", ev.Text[r.printed:])
			r.printed = len(ev.Text)
		}
	case chatService.EventAssistantMessageFinalized:
		r.printf("\n")
	case chatService.EventErrorOccurred:
		if r.printed == 0 {
			r.printf("\n")
		}
		r.errorf("%s: %s", ev.Kind, ev.Detail)
	}
}

func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		r.help()
	case "/new":
		if err = r.ctrl.NewSession(); err == nil {
			r.infof("started session %s", r.ctrl.ActiveID())
		}
	case "/list":
		var ids []string
		if ids, err = r.ctrl.ListSessions(); err == nil {
			r.listSessions(ids)
		}
	case "/load":
		if arg == "" {
			err = errors.New("usage: /load <id>")
			break
		}
		if err = r.ctrl.LoadSession(arg); err == nil {
			r.history()
		}
	case "/delete":
		if arg == "" {
			err = errors.New("usage: /delete <id>")
			break
		}
		if err = r.ctrl.DeleteSession(arg); err == nil {
			r.infof("deleted %s, active session is %s", arg, r.ctrl.ActiveID())
		}
	case "/name":
		if arg == "" {
			err = errors.New("usage: /name <persona name>")
			break
		}
		if err = r.ctrl.SetPersona(arg, ""); err == nil {
			r.infof("persona name set to %s", arg)
		}
	case "/prompt":
		if arg == "" {
			err = errors.New("usage: /prompt <persona instructions>")
			break
		}
		if err = r.ctrl.SetPersona("", arg); err == nil {
			r.infof("persona prompt updated")
		}
	case "/persona":
		if arg == "" {
			err = errors.New("usage: /persona <preset id>")
			break
		}
		err = r.usePreset(arg)
	default:
		err = fmt.Errorf("unknown command %s, try /help", name)
	}

	if err != nil {
		r.errorf("%v", err)
	}
	return false
}

func (r *repl) usePreset(id string) error {
	p, ok := r.personas.FindByID(id)
	if !ok {
		return fmt.Errorf("unknown persona %q", id)
	}
	if err := r.ctrl.SetPersona(p.Name, p.Prompt); err != nil {
		return err
	}
	r.infof("now chatting with %s", p.Name)
	return nil
}

func (r *repl) banner() {
	record := r.ctrl.Snapshot()
	r.infof("session %s with %s. /help for commands, Ctrl-C to stop a reply.", record.Identifier, record.PersonaName)
	if len(record.Messages) > 0 {
		r.history()
	}
}

func (r *repl) history() {
	record := r.ctrl.Snapshot()
	r.infof("session %s with %s, %d messages", record.Identifier, record.PersonaName, len(record.Messages))
	for _, m := range record.Messages {
		label := userLabel()
		if m.Role != chat.RoleUser {
			label = assistantLabel(record.PersonaName)
		}
		r.printf("%s: %s\n", label, m.Content)
	}
}

func (r *repl) listSessions(ids []string) {
	if len(ids) == 0 {
		r.infof("no saved sessions")
		return
	}
	active := r.ctrl.ActiveID()
	for _, id := range ids {
		marker := "  "
		if id == active {
			marker = "* "
		}
		r.printf("%s%s\n", marker, id)
	}
}

func (r *repl) help() {
	r.printf(`Commands:
  /new               save this conversation and start a fresh one
  /list              list saved sessions, most recent first
  /load <id>         switch to a saved session
  /delete <id>       delete a saved session
  /name <name>       rename the persona
  /prompt <text>     replace the persona instructions
  /persona <id>      switch to a preset persona
  /quit              leave
`)
}

func (r *repl) prompt() {
	r.printf("%s> ", userLabel())
}

func (r *repl) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *repl) infof(format string, args ...any) {
	r.printf("%s\n", infoStyle.Render(fmt.Sprintf(format, args...)))
}

func (r *repl) errorf(format string, args ...any) {
	r.printf("%s\n", errorStyle.Render("error: "+fmt.Sprintf(format, args...)))
}
