package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tvollmer/mediadmin/internal/api"
	"github.com/tvollmer/mediadmin/internal/session"
)

var (
	flagEmail    string
	flagPassword string
	flagName     string
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the admin service",
		RunE:  runLogin,
	}

	cmd.Flags().StringVar(&flagEmail, "email", "", "admin email")
	cmd.Flags().StringVar(&flagPassword, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new admin account and log in",
		RunE:  runRegister,
	}

	cmd.Flags().StringVar(&flagName, "name", "", "display name")
	cmd.Flags().StringVar(&flagEmail, "email", "", "admin email")
	cmd.Flags().StringVar(&flagPassword, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the saved session",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated admin",
		RunE:  runWhoami,
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.client.Login(ctx, flagEmail, flagPassword)
	if err != nil {
		return err
	}

	if err := storeCredentials(ctx, a, resp); err != nil {
		return err
	}

	statusf("Logged in as %s.\n", resp.Admin.Email)

	return nil
}

func runRegister(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.client.Register(ctx, flagName, flagEmail, flagPassword)
	if err != nil {
		return err
	}

	if err := storeCredentials(ctx, a, resp); err != nil {
		return err
	}

	statusf("Account created, logged in as %s.\n", resp.Admin.Email)

	return nil
}

// storeCredentials persists the issued token and identity. A persistence
// failure is reported but the in-memory session already reflects the login.
func storeCredentials(ctx context.Context, a *app, resp *api.AuthResponse) error {
	identity := session.Identity{
		Name:      resp.Admin.Name,
		Role:      resp.Admin.Role,
		Email:     resp.Admin.Email,
		AvatarURL: resp.Admin.ProfileImage,
	}

	if err := a.store.SetCredentials(ctx, resp.Token, identity); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Logout(ctx); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

func runWhoami(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	identity := a.store.Identity()
	if identity == nil {
		return fmt.Errorf("session has no identity — run 'mediadmin login' again")
	}

	if flagJSON {
		return printJSON(identity)
	}

	fmt.Printf("Name:  %s\n", identity.Name)
	fmt.Printf("Role:  %s\n", identity.Role)
	fmt.Printf("Email: %s\n", identity.Email)

	if identity.AvatarURL != "" {
		fmt.Printf("Image: %s\n", identity.AvatarURL)
	}

	return nil
}
