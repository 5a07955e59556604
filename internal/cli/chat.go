package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/apperr"
	"github.com/rcliao/memvault/internal/chat"
	"github.com/rcliao/memvault/internal/lifecycle"
	"github.com/rcliao/memvault/internal/model"
	"github.com/rcliao/memvault/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat that remembers",
		Run:   runChat,
	}

	cmd.Flags().Bool("memory", false, "Augment prompts with relevant memories (semantic with an embedding model, shared words with hash)")
	cmd.Flags().Bool("no-feedback", false, "Do not ask for feedback after each answer")

	RootCmd.AddCommand(cmd)
}

const chatHelp = `Commands:
  /list               list installed models
  /model <n|name>     switch model (number from /list)
  /update             pull the latest version of the current model
  /download <name>    install a model
  /memory on|off      toggle memory retrieval
  /threshold <f|off>  set the similarity threshold
  /help               show this help
  /exit               quit`

// repl holds the state of one interactive chat.
type repl struct {
	sess     *session.Session
	mgr      *lifecycle.Manager
	in       *bufio.Scanner
	out      io.Writer
	opts     session.AskOptions
	listed   []model.ModelDescriptor
	feedback bool
}

func runChat(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	useMemory, _ := cmd.Flags().GetBool("memory")
	noFeedback, _ := cmd.Flags().GetBool("no-feedback")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mgr, err := newManager()
	if err != nil {
		exitErr("model runtime", err)
	}
	sess, err := openSession(ctx, s, mgr, true)
	if err != nil {
		exitErr("load memory", err)
	}
	defer sess.Close()

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	r := &repl{
		sess:     sess,
		mgr:      mgr,
		in:       in,
		out:      cmd.OutOrStdout(),
		opts:     session.AskOptions{UseMemory: useMemory, Threshold: profile.Threshold},
		feedback: !noFeedback,
	}
	if profile.ChatProvider == chat.ProviderOllama {
		r.selectModel(ctx, profile.Model)
	}
	fmt.Fprintln(r.out, chatHelp)
	r.loop(ctx)
}

func (r *repl) loop(ctx context.Context) {
	for {
		fmt.Fprint(r.out, "\n>> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return
			}
			continue
		}
		r.ask(ctx, line)
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *repl) ask(ctx context.Context, query string) {
	turn, err := r.sess.Ask(ctx, query, r.opts)
	if turn == nil {
		fmt.Fprintf(r.out, "[!] %s\n", describeChatError(err))
		return
	}
	fmt.Fprintf(r.out, "\n%s\n", turn.Response)
	if err != nil {
		fmt.Fprintf(r.out, "[!] answer not saved: %v\n", err)
	}
	if !r.feedback {
		return
	}

	fmt.Fprint(r.out, "Was this response helpful? (y/n, enter to skip): ")
	if !r.in.Scan() {
		return
	}
	switch strings.ToLower(strings.TrimSpace(r.in.Text())) {
	case "y", "yes":
		err = r.sess.RecordFeedback(turn, true)
	case "n", "no":
		err = r.sess.RecordFeedback(turn, false)
	case "":
		return
	default:
		fmt.Fprintln(r.out, "[!] Invalid feedback, skipped.")
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "[!] could not record feedback: %v\n", err)
	}
}

func describeChatError(err error) string {
	switch {
	case errors.Is(err, apperr.ErrTimeout):
		return "the model did not answer in time; nothing was saved"
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("%v (see /list and /download)", err)
	case errors.Is(err, apperr.ErrRuntimeUnavailable), errors.Is(err, apperr.ErrRuntimeMissing):
		return fmt.Sprintf("model runtime unavailable: %v", err)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}

// command runs a slash command and reports whether to quit.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/list":
		r.list(ctx)
	case "/model":
		if arg == "" {
			fmt.Fprintln(r.out, "[!] Please specify a model number or name (e.g., /model 1).")
			return false
		}
		r.switchModel(ctx, arg)
	case "/update":
		r.update(ctx)
	case "/download":
		if arg == "" {
			fmt.Fprintln(r.out, "[!] Please specify a model name (e.g., /download llama3).")
			return false
		}
		r.download(ctx, arg)
	case "/memory":
		switch arg {
		case "on":
			r.opts.UseMemory = true
		case "off":
			r.opts.UseMemory = false
		default:
			fmt.Fprintln(r.out, "[!] Use /memory on or /memory off.")
			return false
		}
		fmt.Fprintf(r.out, "[+] Memory %s.\n", arg)
	case "/threshold":
		r.setThreshold(arg)
	default:
		fmt.Fprintf(r.out, "[!] Unknown command %s. Type /help.\n", name)
	}
	return false
}

func (r *repl) list(ctx context.Context) {
	r.listed = r.mgr.ListInstalled(ctx)
	if len(r.listed) == 0 {
		fmt.Fprintln(r.out, "[!] No models found. Is ollama installed and running? Use /download <name>.")
		return
	}
	active, _ := r.mgr.Active()
	fmt.Fprintln(r.out, "Installed models:")
	for i, m := range r.listed {
		marker := " "
		if m.Name == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, " %s %d. %s\n", marker, i+1, m.Name)
	}
}

func (r *repl) switchModel(ctx context.Context, arg string) {
	name := arg
	if n, err := strconv.Atoi(arg); err == nil {
		if len(r.listed) == 0 {
			r.listed = r.mgr.ListInstalled(ctx)
		}
		if n < 1 || n > len(r.listed) {
			fmt.Fprintln(r.out, "[!] Invalid model number. Use /list to see the models.")
			return
		}
		name = r.listed[n-1].Name
	}
	r.selectModel(ctx, name)
}

// selectModel switches to name and mentions a pending update.
func (r *repl) selectModel(ctx context.Context, name string) {
	if err := r.mgr.Switch(ctx, name); err != nil {
		fmt.Fprintf(r.out, "[!] Cannot use model %s: %s\n", name, describeChatError(err))
		return
	}
	active, _ := r.mgr.Active()
	fmt.Fprintf(r.out, "[+] Using model %s.\n", active)
	if r.mgr.CheckUpdate(ctx, active) {
		fmt.Fprintln(r.out, "[+] A newer version is available. Type /update to pull it.")
	}
}

func (r *repl) update(ctx context.Context) {
	active, state := r.mgr.Active()
	if state != lifecycle.Active {
		fmt.Fprintln(r.out, "[!] No model selected. Use /model first.")
		return
	}
	err := r.mgr.Update(ctx, progressPrinter())
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(r.out, "[!] Update of %s failed: %s\n", active, describeChatError(err))
		return
	}
	fmt.Fprintf(r.out, "[+] Model %s is up to date.\n", active)
}

func (r *repl) download(ctx context.Context, name string) {
	err := r.mgr.Download(ctx, name, progressPrinter())
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(r.out, "[!] Download of %s failed: %s\n", name, describeChatError(err))
		return
	}
	r.listed = nil
	fmt.Fprintf(r.out, "[+] Model %s downloaded. Use /model to switch.\n", lifecycle.NormalizeName(name))
}

func (r *repl) setThreshold(arg string) {
	if arg == "" || arg == "off" {
		r.opts.Threshold = nil
		fmt.Fprintln(r.out, "[+] Threshold off.")
		return
	}
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil || f < -1 || f > 1 {
		fmt.Fprintln(r.out, "[!] Threshold must be a number between -1 and 1.")
		return
	}
	r.opts.Threshold = &f
	fmt.Fprintf(r.out, "[+] Threshold %g.\n", f)
}
