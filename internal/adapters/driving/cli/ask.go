package cli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

// askPollInterval is how often the streamed answer is flushed to stdout.
const askPollInterval = 40 * time.Millisecond

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and stream the answer",
	Long: `Retrieves relevant context from your documents, sends the augmented
question to the local language model, and streams the answer to stdout.
Press Ctrl+C to stop generation; partial output is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := retrievalService.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize retrieval: %w", err)
	}

	// Ctrl+C cancels the in-flight generation instead of killing the process.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		if chatService.IsGenerating() {
			chatService.Cancel()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- chatService.SubmitUserMessage(ctx, args[0])
	}()

	// Stream the growing assistant turn to stdout.
	printed := 0
	ticker := time.NewTicker(askPollInterval)
	defer ticker.Stop()

	var submitErr error
loop:
	for {
		select {
		case submitErr = <-errCh:
			break loop
		case <-ticker.C:
			printed += printDelta(cmd, printed)
		}
	}
	printDelta(cmd, printed)
	cmd.Println()

	if submitErr != nil {
		return fmt.Errorf("generation failed: %w", submitErr)
	}

	if tps := chatService.TokensPerTurn(); len(tps) > 0 {
		logger.Info("Throughput: %.1f tokens/s", tps[len(tps)-1])
	}
	return nil
}

// printDelta writes any not-yet-printed suffix of the in-progress answer and
// returns the number of bytes written.
func printDelta(cmd *cobra.Command, printed int) int {
	transcript := chatService.Transcript()
	if len(transcript) == 0 {
		return 0
	}
	last := transcript[len(transcript)-1]
	if last.Role != domain.RoleAssistant || len(last.Content) <= printed {
		return 0
	}
	cmd.Print(last.Content[printed:])
	return len(last.Content) - printed
}
