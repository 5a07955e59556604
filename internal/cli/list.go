package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().String("source", "", "Filter by source prefix (e.g. local_llm:, file:)")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0: all)")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.LoadAll(cmd.Context())
	if err != nil {
		exitErr("list", err)
	}

	out := make([]model.Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if source != "" && !strings.HasPrefix(entries[i].Source, source) {
			continue
		}
		out = append(out, entries[i])
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}
