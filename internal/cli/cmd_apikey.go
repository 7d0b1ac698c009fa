package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowd/internal/auth"
	"github.com/randalmurphal/flowd/internal/db"
)

// newAPIKeyCmd groups API key subcommands.
func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCmd())
	return cmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a user",
		Long: `Create an API key. The key is printed once and only its digest is
stored; there is no way to recover a lost key.

Creates the user when it does not exist yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if name == "" {
				name = "default"
			}

			return withDatabase(func(d *db.DB) error {
				user, err := ensureUser(d, email)
				if err != nil {
					return err
				}

				key, err := auth.GenerateKey()
				if err != nil {
					return err
				}
				if err := d.SaveAPIKey(&db.APIKey{
					ID:      uuid.New().String(),
					UserID:  user.ID,
					Name:    name,
					KeyHash: auth.HashKey(key),
				}); err != nil {
					return err
				}

				fmt.Printf("User:    %s\n", user.ID)
				fmt.Printf("API key: %s\n", key)
				fmt.Println("Store the key now; it cannot be shown again.")
				return nil
			})
		},
	}
	cmd.Flags().String("email", "", "user email")
	cmd.Flags().String("name", "", "key name")
	return cmd
}

// ensureUser resolves a user by email, creating one on first use.
func ensureUser(d *db.DB, email string) (*db.User, error) {
	user, err := d.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	user = &db.User{ID: uuid.New().String(), Name: email, Email: email}
	if err := d.SaveUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
