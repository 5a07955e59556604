package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/memvault/internal/lifecycle"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage local models",
}

func init() {
	list := &cobra.Command{
		Use:   "list",
		Short: "List installed models",
		Args:  cobra.NoArgs,
		Run:   runModelsList,
	}
	list.Flags().Bool("check", false, "Also check the registry for updates")

	check := &cobra.Command{
		Use:   "check [name]",
		Short: "Check whether a newer version of a model is available",
		Args:  cobra.MaximumNArgs(1),
		Run:   runModelsCheck,
	}
	switchCmd := &cobra.Command{
		Use:   "switch [name]",
		Short: "Verify a model is installed and can be selected",
		Args:  cobra.ExactArgs(1),
		Run:   runModelsSwitch,
	}
	update := &cobra.Command{
		Use:   "update [name]",
		Short: "Pull the latest version of a model (default: --model)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runModelsUpdate,
	}
	download := &cobra.Command{
		Use:   "download [name]",
		Short: "Install a model",
		Args:  cobra.ExactArgs(1),
		Run:   runModelsDownload,
	}

	modelsCmd.AddCommand(list, check, switchCmd, update, download)
	RootCmd.AddCommand(modelsCmd)
}

type modelStatus struct {
	Name            string `json:"name"`
	Installed       bool   `json:"installed"`
	LocalVersion    string `json:"local_version,omitempty"`
	RemoteVersion   string `json:"remote_version,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

func mustManager() *lifecycle.Manager {
	mgr, err := newManager()
	if err != nil {
		exitErr("model runtime", err)
	}
	return mgr
}

func runModelsList(cmd *cobra.Command, args []string) {
	check, _ := cmd.Flags().GetBool("check")
	mgr := mustManager()

	models := mgr.ListInstalled(cmd.Context())
	out := make([]modelStatus, len(models))
	for i, m := range models {
		out[i] = modelStatus{Name: m.Name, Installed: true, LocalVersion: m.LocalVersion}
		if check {
			out[i].UpdateAvailable = mgr.CheckUpdate(cmd.Context(), m.Name)
		}
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func runModelsCheck(cmd *cobra.Command, args []string) {
	name := profile.Model
	if len(args) == 1 {
		name = args[0]
	}
	mgr := mustManager()

	d, err := mgr.Describe(cmd.Context(), name)
	if err != nil {
		exitErr("check "+name, err)
	}
	b, _ := json.MarshalIndent(modelStatus{
		Name:            d.Name,
		Installed:       d.Installed,
		LocalVersion:    d.LocalVersion,
		RemoteVersion:   d.RemoteVersion,
		UpdateAvailable: mgr.CheckUpdate(cmd.Context(), name),
	}, "", "  ")
	fmt.Println(string(b))
}

func runModelsSwitch(cmd *cobra.Command, args []string) {
	mgr := mustManager()
	if err := mgr.Switch(cmd.Context(), args[0]); err != nil {
		exitErr("switch", err)
	}
	name, state := mgr.Active()
	fmt.Printf(`{"ok":true,"model":%q,"state":%q}`+"\n", name, state)
}

func runModelsUpdate(cmd *cobra.Command, args []string) {
	name := profile.Model
	if len(args) == 1 {
		name = args[0]
	}
	mgr := mustManager()
	if err := updateModel(cmd.Context(), mgr, name); err != nil {
		exitErr("update "+name, err)
	}
	fmt.Printf(`{"ok":true,"model":%q}`+"\n", name)
}

// updateModel selects name and pulls its latest version.
func updateModel(ctx context.Context, mgr *lifecycle.Manager, name string) error {
	if err := mgr.Switch(ctx, name); err != nil {
		return err
	}
	err := mgr.Update(ctx, progressPrinter())
	fmt.Fprintln(os.Stderr)
	return err
}

func runModelsDownload(cmd *cobra.Command, args []string) {
	mgr := mustManager()
	err := mgr.Download(cmd.Context(), args[0], progressPrinter())
	fmt.Fprintln(os.Stderr)
	if err != nil {
		exitErr("download "+args[0], err)
	}
	fmt.Printf(`{"ok":true,"model":%q}`+"\n", lifecycle.NormalizeName(args[0]))
}
