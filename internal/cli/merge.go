package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "merge [other-store]",
		Short: "Merge another memory store into this one",
		Long: "Append every entry of another store that this store does not hold yet. " +
			"The other store may be encrypted with a different passphrase.",
		Args: cobra.ExactArgs(1),
		Run:  runMerge,
	}

	cmd.Flags().String("from-passphrase-file", "", "Passphrase file of the other store")

	RootCmd.AddCommand(cmd)
}

func runMerge(cmd *cobra.Command, args []string) {
	fromPass, _ := cmd.Flags().GetString("from-passphrase-file")

	if _, err := os.Stat(args[0]); err != nil {
		exitErr("merge", err)
	}

	dst, _, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer dst.Close()

	src, err := openOther(args[0], fromPass)
	if err != nil {
		exitErr("open "+args[0], err)
	}
	defer src.Close()

	added, err := store.Merge(cmd.Context(), dst, src)
	if err != nil {
		exitErr("merge", err)
	}

	fmt.Printf(`{"ok":true,"merged":%d}`+"\n", added)
}
