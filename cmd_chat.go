package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/session"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Plan a trip in the terminal",
	Long: `Starts an interactive planning session in this process.
Commands: /state prints the checkpoint, /resume continues an interrupted turn, /quit exits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, appConfig)
		if err != nil {
			return err
		}
		defer a.Close()

		resumeID, _ := cmd.Flags().GetString("session")
		id, err := chatSession(cmd, a.sessions.Registry(), resumeID)
		if err != nil {
			return err
		}

		render, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("create markdown renderer: %w", err)
		}
		r := &repl{
			out:    cmd.OutOrStdout(),
			render: render.Render,
		}
		fmt.Fprintf(r.out, "Session %s. Type /quit to exit.\n", id)

		in := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(r.out, "\n> ")
			if !in.Scan() {
				return in.Err()
			}
			line := strings.TrimSpace(in.Text())
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/state":
				state, err := a.sessions.State(ctx, id)
				if err != nil {
					r.fail(err)
					continue
				}
				b, _ := json.MarshalIndent(state, "", "  ")
				fmt.Fprintln(r.out, string(b))
			case "/resume":
				res, err := a.sessions.Resume(ctx, id, r.progress)
				r.show(res, err)
			default:
				res, err := a.sessions.Send(ctx, id, line, r.progress)
				r.show(res, err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("session", "", "Continue a stored session instead of starting a new one")
}

func chatSession(cmd *cobra.Command, reg *session.Registry, id string) (string, error) {
	if id != "" {
		if !reg.Exists(id) {
			return "", fmt.Errorf("session %s not found in the checkpoint store", id)
		}
		return id, nil
	}
	info, err := reg.Create(cmd.Context())
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

type repl struct {
	out    io.Writer
	render func(string) (string, error)
}

// progress prints one line per node as the turn advances.
func (r *repl) progress(e model.Event) {
	if e.Type == model.EventProcessing {
		fmt.Fprintf(r.out, "  … %s\n", e.Node)
	}
}

func (r *repl) show(res *model.TurnResult, err error) {
	if err != nil {
		r.fail(err)
		return
	}
	reply := res.Reply()
	if reply == "" {
		return
	}
	out, rerr := r.render(reply)
	if rerr != nil {
		out = reply
	}
	fmt.Fprint(r.out, out)
	if res.Status == model.TurnCompleted {
		fmt.Fprintln(r.out, "Itinerary complete.")
	}
}

func (r *repl) fail(err error) {
	fmt.Fprintf(os.Stderr, "error (%s): %s\n", errx.KindOf(err), errx.MessageOf(err))
	if errx.IsKind(err, errx.KindExternal) || errx.IsKind(err, errx.KindLoopBound) {
		fmt.Fprintln(os.Stderr, "The turn stopped early. Type /resume to continue it or send a new message.")
	}
}
