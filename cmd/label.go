package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/recallme/internal/utils"
)

var labelCmd = &cobra.Command{
	Use:         "label <identity_id> <name>",
	Short:       "Rename an identity in the face gallery",
	Args:        cobra.ExactArgs(2),
	Annotations: dbAnnotation,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		id, err := strconv.Atoi(args[0])
		if err != nil {
			utils.ShowError("Invalid identity ID", err, nil)
			return err
		}
		name := strings.TrimSpace(args[1])
		if name == "" {
			err := fmt.Errorf("name must not be empty")
			utils.ShowError("Invalid name", err, nil)
			return err
		}

		if err := DB.RenameIdentity(cmd.Context(), id, name); err != nil {
			utils.ShowError("Failed to label identity", err, nil)
			return err
		}

		fmt.Printf("✅ Identity %d labeled as '%s'\n", id, name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}
