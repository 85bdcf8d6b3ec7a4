package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/session"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	cfg, err := config.Resolve(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sessionName := session.Resolve(*sessionFlag, cfg.DefaultSession)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, conn, err := api.Dial(session.For(sessionName).Socket())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	out := output{json: *jsonFlag}
	if args[0] == "watch" {
		prefix := ""
		if len(args) >= 2 {
			prefix = args[1]
		}
		exitOn(cmdWatch(c, prefix, out))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		exitOn(cmdStatus(ctx, c, out))
	case "conversations":
		exitOn(cmdConversations(ctx, c, out))
	case "messages":
		exitOn(cmdMessages(ctx, c, optional(args, 1), out))
	case "open":
		if len(args) < 2 {
			usageError("usage: chatsyncctl open <conversation-id>")
		}
		exitOn(cmdOpen(ctx, c, args[1], out))
	case "send":
		if len(args) < 2 {
			usageError("usage: chatsyncctl send <text>")
		}
		exitOn(cmdSend(ctx, c, strings.Join(args[1:], " "), out))
	case "typing":
		exitOn(cmdTyping(ctx, c, out))
	case "pins":
		exitOn(cmdPins(ctx, c, optional(args, 1), out))
	case "notes":
		exitOn(cmdNotes(ctx, c, out))
	case "draft":
		exitOn(cmdDraft(ctx, c, args[1:], out))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show connection and session state")
	fmt.Fprintln(os.Stderr, "  conversations          List conversations")
	fmt.Fprintln(os.Stderr, "  messages [id]          List messages (default: active conversation)")
	fmt.Fprintln(os.Stderr, "  open <id>              Make a conversation active")
	fmt.Fprintln(os.Stderr, "  send <text>            Send text to the active conversation")
	fmt.Fprintln(os.Stderr, "  typing                 Show who is typing in the active conversation")
	fmt.Fprintln(os.Stderr, "  pins [id]              List pinned messages")
	fmt.Fprintln(os.Stderr, "  notes                  List notes")
	fmt.Fprintln(os.Stderr, "  draft get [id]         Show a draft")
	fmt.Fprintln(os.Stderr, "  draft set <id> <text>  Replace a draft")
	fmt.Fprintln(os.Stderr, "  watch [prefix]         Stream daemon events")
}

func usageError(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func exitOn(err error) {
	if err == nil {
		return
	}
	if st, ok := grpcstatus.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s (%s)\n", st.Message(), st.Code())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func optional(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// output prints either indented JSON or the text form.
type output struct {
	json bool
}

func (o output) print(v any, text func()) {
	if o.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		}
		return
	}
	text()
}

func cmdStatus(ctx context.Context, c *api.Client, out output) error {
	resp, err := c.Status(ctx)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		fmt.Printf("Session:       %s\n", resp.Session)
		fmt.Printf("Connection:    %s (since %s)\n", resp.State, resp.Since.Local().Format(time.Kitchen))
		fmt.Printf("Active:        %s\n", orDash(resp.ActiveConversation))
		fmt.Printf("Conversations: %d (%d unread)\n", resp.Conversations, resp.UnreadTotal)
		if len(resp.PendingSends) > 0 {
			fmt.Printf("Unsent:        %d\n", len(resp.PendingSends))
		}
	})
	return nil
}

func cmdConversations(ctx context.Context, c *api.Client, out output) error {
	resp, err := c.Conversations(ctx)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		if len(resp.Conversations) == 0 {
			fmt.Println("No conversations.")
			return
		}
		for _, conv := range resp.Conversations {
			flags := ""
			if conv.IsPinned {
				flags += "P"
			}
			if conv.IsMuted {
				flags += "M"
			}
			fmt.Printf("%-36s %-2s %-24s %3d  %s\n", conv.ID, flags, conv.Title, conv.UnreadCount, conv.LastMessageText)
		}
	})
	return nil
}

func cmdMessages(ctx context.Context, c *api.Client, id string, out output) error {
	resp, err := c.Messages(ctx, id)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		for _, m := range resp.Messages {
			printMessage(m)
		}
	})
	return nil
}

func printMessage(m model.Message) {
	text := m.Content
	switch {
	case m.IsDeleted:
		text = "(deleted)"
	case m.MessageType != model.MessageText:
		text = fmt.Sprintf("[%s] %s", m.MessageType, text)
	}
	edited := ""
	if m.IsEdited {
		edited = " (edited)"
	}
	fmt.Printf("%s %-16s %s%s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, text, edited)
}

func cmdOpen(ctx context.Context, c *api.Client, id string, out output) error {
	resp, err := c.Open(ctx, id)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		fmt.Printf("Opened %s (%s)\n", resp.Conversation.Title, resp.Conversation.ID)
	})
	return nil
}

func cmdSend(ctx context.Context, c *api.Client, text string, out output) error {
	resp, err := c.Send(ctx, api.SendRequest{Text: text})
	if err != nil {
		return err
	}
	out.print(resp, func() {
		fmt.Printf("Sent %s\n", resp.Message.ID)
	})
	return nil
}

func cmdTyping(ctx context.Context, c *api.Client, out output) error {
	resp, err := c.Typing(ctx)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		if len(resp.Users) == 0 {
			fmt.Println("Nobody is typing.")
			return
		}
		names := make([]string, 0, len(resp.Users))
		for _, u := range resp.Users {
			name := u.DisplayName
			if name == "" {
				name = u.UserID
			}
			names = append(names, name)
		}
		fmt.Printf("%s typing...\n", strings.Join(names, ", "))
	})
	return nil
}

func cmdPins(ctx context.Context, c *api.Client, id string, out output) error {
	resp, err := c.Pins(ctx, id)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		if len(resp.Pins) == 0 {
			fmt.Println("No pinned messages.")
			return
		}
		for _, p := range resp.Pins {
			text := p.MessageID
			if p.Message != nil {
				text = p.Message.Content
			}
			fmt.Printf("%-8s %s\n", p.PinType, text)
		}
	})
	return nil
}

func cmdNotes(ctx context.Context, c *api.Client, out output) error {
	resp, err := c.Notes(ctx)
	if err != nil {
		return err
	}
	out.print(resp, func() {
		for _, n := range resp.Notes {
			pin := " "
			if n.IsPinned {
				pin = "*"
			}
			fmt.Printf("%s %-36s %s\n", pin, n.ID, n.Title)
		}
	})
	return nil
}

func cmdDraft(ctx context.Context, c *api.Client, args []string, out output) error {
	if len(args) == 0 {
		usageError("usage: chatsyncctl draft <get [id]|set <id> <text>>")
	}
	var (
		resp api.DraftReply
		err  error
	)
	switch args[0] {
	case "get":
		resp, err = c.Draft(ctx, optional(args, 1))
	case "set":
		if len(args) < 2 {
			usageError("usage: chatsyncctl draft set <id> <text>")
		}
		resp, err = c.SetDraft(ctx, args[1], strings.Join(args[2:], " "))
	default:
		usageError("unknown draft subcommand: " + args[0])
	}
	if err != nil {
		return err
	}
	out.print(resp, func() {
		fmt.Println(resp.Text)
	})
	return nil
}

// cmdWatch streams events until interrupted.
func cmdWatch(c *api.Client, prefix string, out output) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := c.Watch(ctx, prefix)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || grpcstatus.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		out.print(evt, func() {
			fmt.Printf("%s %-32s %s\n", evt.OccurredAt.Local().Format("15:04:05"), evt.Kind, evt.Payload)
		})
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
