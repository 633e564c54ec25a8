package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/tablechat/internal/ai"
	"github.com/KaramelBytes/tablechat/internal/chat"
	"github.com/KaramelBytes/tablechat/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	chatVendor  string
	chatModel   string
	chatStream  string
	chatMessage string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Example: `  tablechat chat
  tablechat chat --vendor ollama --model qwen2.5:7b
  tablechat chat --message "Summarise the plot of Hamlet" --stream off`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		rr, err := buildRuntime(c, runtimeOptions{VendorFlag: chatVendor, ModelFlag: chatModel, StreamFlag: chatStream})
		if err != nil {
			return err
		}
		relay := chat.NewRelay(rr.Runtime, chat.Options{
			Model:        rr.Model,
			SystemPrompt: c.SystemPrompt,
			MaxTokens:    c.MaxTokens,
			Temperature:  ai.Float64(c.ChatTemperature),
			Logger:       logging.L(),
		})
		sess := chat.NewSession(c.Greeting)
		logging.L().Debug("chat session started",
			zap.String("session", sess.ID),
			zap.String("vendor", rr.Vendor.ID),
			zap.String("model", rr.Model),
			zap.Bool("stream", rr.Stream))

		out := cmd.OutOrStdout()
		if strings.TrimSpace(chatMessage) != "" {
			relay.Exchange(cmd.Context(), sess, chatMessage, rr.Stream, func(frag string) {
				fmt.Fprint(out, frag)
			})
			fmt.Fprintln(out)
			return nil
		}
		fmt.Fprintf(out, "%s · %s (stream %v) · /history /reset /exit\n", rr.Vendor.Name, rr.Model, rr.Stream)
		return runREPL(cmd.Context(), cmd.InOrStdin(), out, relay, sess, rr.Stream, c.Greeting)
	},
}

type replStyles struct {
	human lipgloss.Style
	ai    lipgloss.Style
	note  lipgloss.Style
}

func newReplStyles(w io.Writer) replStyles {
	r := lipgloss.NewRenderer(w)
	return replStyles{
		human: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ai:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		note:  r.NewStyle().Faint(true),
	}
}

func (st replStyles) label(role chat.Role) string {
	if role == chat.RoleHuman {
		return st.human.Render("you>")
	}
	return st.ai.Render("ai>")
}

// runREPL reads one message per line from in until EOF or /exit. Every
// message goes through Exchange; fragments are printed as they arrive.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, relay *chat.Relay, sess *chat.Session, streaming bool, greeting string) error {
	st := newReplStyles(out)
	for _, t := range sess.History() {
		fmt.Fprintf(out, "%s %s\n", st.label(t.Role), t.Content)
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprintf(out, "%s ", st.label(chat.RoleHuman))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			sess.Reset(greeting)
			fmt.Fprintln(out, st.note.Render("✓ history cleared"))
			continue
		case "/history":
			for i, t := range sess.History() {
				fmt.Fprintf(out, "%3d %s %s\n", i+1, st.label(t.Role), t.Content)
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(out, "%s ", st.label(chat.RoleAI))
		relay.Exchange(ctx, sess, line, streaming, func(frag string) {
			fmt.Fprint(out, frag)
		})
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatVendor, "vendor", "", "vendor preset (see `tablechat vendors`)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model id (default: config, then the vendor's first model)")
	chatCmd.Flags().StringVar(&chatStream, "stream", "", "stream replies: auto|on|off (default from config)")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message, print the reply and exit")
}
