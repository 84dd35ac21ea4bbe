package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quorum-labs/parley-cli/internal/adapters/driving/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Opens a terminal UI for a multi-turn conversation. Each question is
augmented with context retrieved from your documents before generation.
Press Esc to stop an in-flight answer, Ctrl+C to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chat requires an interactive terminal; use 'parley ask' instead")
	}

	if err := initServices(); err != nil {
		return err
	}

	if err := retrievalService.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("initialize retrieval: %w", err)
	}

	return tui.Run(chatService)
}
