package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by meaning",
		Long:  "Rank stored memories by cosine similarity to the query.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 0, "Max results (default: --top-k)")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = profile.TopK
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

	hits, err := sess.Search(cmd.Context(), query, limit, profile.Threshold)
	if err != nil {
		exitErr("search", err)
	}

	if len(hits) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(hits, "", "  ")
	fmt.Println(string(b))
}
