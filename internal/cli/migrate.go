package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade a version 1 memory file",
		Long: "Convert a legacy JSON array of memories into the current schema. " +
			"The original file is kept next to it with a .v1.bak suffix.",
		Run: runMigrate,
	}

	RootCmd.AddCommand(cmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	if profile.Driver != store.DriverJSON {
		exitErr("migrate", fmt.Errorf("only the json driver has a legacy format"))
	}

	res, err := store.Migrate(profile.StorePath)
	if err != nil {
		exitErr("migrate", err)
	}

	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
}
