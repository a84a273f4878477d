package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ytup/internal/transfer"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List interrupted uploads in the resume journal",
		Args:  cobra.NoArgs,
		RunE:  runSessions,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all resume journal entries",
		Args:  cobra.NoArgs,
		RunE:  runSessionsClear,
	})

	return cmd
}

func runSessions(_ *cobra.Command, _ []string) error {
	journal, err := transfer.OpenJournal(settings.JournalFile, buildLogger())
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := journal.List(context.Background())
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		statusf("No interrupted uploads.\n")
		return nil
	}

	for _, e := range entries {
		pct := float64(0)
		if e.Size > 0 {
			pct = float64(e.Offset) / float64(e.Size) * 100
		}

		fmt.Printf("%s  %s  %d/%d bytes (%.1f%%)  updated %s\n",
			e.ID, e.Path, e.Offset, e.Size, pct, e.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func runSessionsClear(_ *cobra.Command, _ []string) error {
	journal, err := transfer.OpenJournal(settings.JournalFile, buildLogger())
	if err != nil {
		return err
	}
	defer journal.Close()

	if err := journal.Clear(context.Background()); err != nil {
		return err
	}

	statusf("Resume journal cleared.\n")

	return nil
}
