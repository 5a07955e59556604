package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/session"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Show the prompt a query would be sent with",
		Long:  "Retrieve the memories most similar to the query and print the augmented prompt without calling a model.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().IntP("budget", "b", 0, "Max characters of memory text (0: unlimited)")
	cmd.Flags().Bool("prompt-only", false, "Print only the prompt text")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	promptOnly, _ := cmd.Flags().GetBool("prompt-only")
	if cmd.Flags().Changed("budget") {
		profile.Budget, _ = cmd.Flags().GetInt("budget")
	}
	query := strings.Join(args, " ")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := openSession(cmd.Context(), s, nil, false)
	if err != nil {
		exitErr("load memory", err)
	}

	plan := sess.Plan(cmd.Context(), query, session.AskOptions{UseMemory: true, Threshold: profile.Threshold})
	if promptOnly {
		fmt.Println(plan.Prompt)
		return
	}

	b, _ := json.MarshalIndent(plan, "", "  ")
	fmt.Println(string(b))
}
