package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [text]",
		Short: "Store a memory",
		Long:  "Store a memory. Text can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}

	cmd.Flags().StringP("source", "s", model.SourceManual, "Source tag")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	source, _ := cmd.Flags().GetString("source")

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	if strings.TrimSpace(text) == "" {
		exitErr("remember", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	s, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := openSession(cmd.Context(), s, nil, false)
	if err != nil {
		exitErr("load memory", err)
	}
	if err := sess.Remember(cmd.Context(), source, text); err != nil {
		exitErr("remember", err)
	}

	fmt.Println(`{"ok":true}`)
}
