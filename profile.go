package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tvollmer/mediadmin/internal/api"
	"github.com/tvollmer/mediadmin/internal/session"
)

var (
	flagProfileEmail    string
	flagProfilePassword string
	flagProfileImage    string
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the admin profile",
	}

	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileUpdateCmd())

	return cmd
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Fetch the profile from the service",
		RunE:  runProfileShow,
	}
}

func newProfileUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change email, password, or profile image",
		RunE:  runProfileUpdate,
	}

	cmd.Flags().StringVar(&flagProfileEmail, "email", "", "new email")
	cmd.Flags().StringVar(&flagProfilePassword, "password", "", "new password")
	cmd.Flags().StringVar(&flagProfileImage, "image", "", "path to a new profile image")

	return cmd
}

func runProfileShow(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	admin, err := a.client.Profile(ctx)
	if err != nil {
		return a.checkAuthError(ctx, err)
	}

	// Refresh the cached identity with the server's record.
	if err := a.store.UpdateIdentity(ctx, identityPatch(admin)); err != nil {
		a.logger.Warn("refreshing cached identity", "error", err.Error())
	}

	if flagJSON {
		return printJSON(admin)
	}

	fmt.Printf("Name:  %s\n", admin.Name)
	fmt.Printf("Role:  %s\n", admin.Role)
	fmt.Printf("Email: %s\n", admin.Email)

	if admin.ProfileImage != "" {
		fmt.Printf("Image: %s\n", admin.ProfileImage)
	}

	return nil
}

func runProfileUpdate(_ *cobra.Command, _ []string) error {
	if flagProfileEmail == "" && flagProfilePassword == "" && flagProfileImage == "" {
		return fmt.Errorf("nothing to update — pass --email, --password, or --image")
	}

	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	admin, err := a.client.UpdateProfile(ctx, api.ProfileUpdate{
		Email:            flagProfileEmail,
		Password:         flagProfilePassword,
		ProfileImagePath: flagProfileImage,
	})
	if err != nil {
		return a.checkAuthError(ctx, err)
	}

	if err := a.store.UpdateIdentity(ctx, identityPatch(admin)); err != nil {
		return fmt.Errorf("persisting updated identity: %w", err)
	}

	statusf("Profile updated.\n")

	return nil
}

// identityPatch maps the server record onto a shallow-merge patch.
func identityPatch(admin *api.Admin) session.IdentityPatch {
	patch := session.IdentityPatch{
		Name:  &admin.Name,
		Role:  &admin.Role,
		Email: &admin.Email,
	}

	if admin.ProfileImage != "" {
		patch.AvatarURL = &admin.ProfileImage
	}

	return patch
}
