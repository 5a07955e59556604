package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask one question and store the exchange",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk,
	}

	cmd.Flags().Bool("memory", false, "Augment the prompt with relevant memories (semantic with an embedding model, shared words with hash)")

	RootCmd.AddCommand(cmd)
}

type askResult struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	Source   string `json:"source"`
	Saved    bool   `json:"saved"`
}

func runAsk(cmd *cobra.Command, args []string) {
	useMemory, _ := cmd.Flags().GetBool("memory")
	query := strings.Join(args, " ")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mgr, err := newManager()
	if err != nil {
		exitErr("model runtime", err)
	}
	sess, err := openSession(cmd.Context(), s, mgr, true)
	if err != nil {
		exitErr("load memory", err)
	}
	defer sess.Close()

	turn, err := sess.Ask(cmd.Context(), query, session.AskOptions{UseMemory: useMemory, Threshold: profile.Threshold})
	if turn == nil {
		sess.Close()
		exitErr("ask", err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	b, _ := json.MarshalIndent(askResult{
		Prompt:   turn.Prompt,
		Response: turn.Response,
		Source:   turn.Source,
		Saved:    err == nil,
	}, "", "  ")
	fmt.Println(string(b))
}
