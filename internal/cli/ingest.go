package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/ingest"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file|dir]",
		Short: "Store the contents of text or markdown files",
		Long: "Split .txt and .md files into chunks and store each chunk as a memory " +
			"tagged with its file name. Directories are read one level deep.",
		Args: cobra.ExactArgs(1),
		Run:  runIngest,
	}

	opts := ingest.DefaultOptions()
	cmd.Flags().Int("chunk-size", opts.TargetSize, "Target chunk size in characters")
	cmd.Flags().Int("max-chunk", opts.MaxSize, "Hard chunk size limit in characters")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	opts := ingest.DefaultOptions()
	opts.TargetSize, _ = cmd.Flags().GetInt("chunk-size")
	opts.MaxSize, _ = cmd.Flags().GetInt("max-chunk")
	if opts.MaxSize < opts.TargetSize {
		opts.MaxSize = opts.TargetSize
	}

	entries, err := ingest.Path(args[0], opts, nil)
	if err != nil {
		exitErr("ingest", err)
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
	n, err := sess.Ingest(cmd.Context(), entries)
	if err != nil {
		exitErr("ingest", err)
	}

	fmt.Printf(`{"ok":true,"stored":%d}`+"\n", n)
}
