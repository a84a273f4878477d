package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize with YouTube and store the credential",
		Long: `Authorize ytup against the YouTube Data API and store the resulting
credential for later uploads.

Interactive mode opens a browser and receives the authorization code on a
localhost callback. With --headless (or when stdout is not a terminal) the
authorization URL is printed instead and the code is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Bool("force-refresh", false, "refresh the stored credential even if it is still valid")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(context.Background(), logger)

	authorizer, err := newAuthorizer(logger)
	if err != nil {
		return err
	}

	forceRefresh, _ := cmd.Flags().GetBool("force-refresh") //nolint:errcheck // flag is defined above

	if forceRefresh {
		if err := authorizer.Refresh(ctx, true); err != nil {
			return err
		}

		statusf("Credential refreshed.\n")

		return nil
	}

	if err := authorizer.Authorize(ctx, interactiveFlow()); err != nil {
		return err
	}

	statusf("Login successful.\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	authorizer, err := newAuthorizer(logger)
	if err != nil {
		return err
	}

	if err := authorizer.Logout(); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}
