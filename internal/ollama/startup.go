package ollama

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EnsureReady checks that Ollama is up and the generation model is
// installed, pulling it with progress written to w when missing. A failed
// warm-up call is reported but not fatal.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running at %s. Start it with: ollama serve", c.baseURL)
	}

	ok, err := c.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "model %s: pulling...\n", model)
		last := ""
		err := c.Pull(ctx, model, func(p PullProgress) {
			line := p.Status
			if p.Total > 0 {
				line = fmt.Sprintf("%s %d%%", p.Status, p.Completed*100/p.Total)
			}
			if line != last {
				fmt.Fprintf(w, "  %s\n", line)
				last = line
			}
		})
		if err != nil {
			return err
		}
	}

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.Chat(warmCtx, ChatRequest{Model: model, Messages: []Message{{Role: "user", Content: "ping"}}}); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", model, err)
		return nil
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
