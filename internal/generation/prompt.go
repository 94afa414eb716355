package generation

import (
	"fmt"

	"github.com/kalambet/tdgen/internal/engine"
)

const systemPrompt = `You are a data analyst with 10 years of experience building a search term classification system.

Task: classify search terms as "Direct Embedding Search" or "Keyword Extraction Needed".

Direct Embedding Search applies to search terms that:
- contain specific, concrete descriptors (color, material, style, form)
- are self-contained and need no external context
- have direct visual or textual embedding potential
Examples: "navy blue suede sneakers", "rustic wooden dining table", "sleek black gaming laptop"

Keyword Extraction Needed applies to search terms that:
- contain abstract qualities, contexts or usage scenarios
- have relative attributes (price, trends, popularity)
- include questions, comparisons, named entities or intent-driven queries
Examples: "top-rated hiking boots", "how to choose a laptop", "best gifts for new parents"

Rules:
1. Mixed queries are classified by dominant intent.
   "cheap stainless steel watch" is Direct Embedding Search.
   "best watches for business professionals" is Keyword Extraction Needed.
2. Time-based, usage-based, comparison, intent-driven ("How to...", "What is...", "Best for...") and DIY/process queries are always Keyword Extraction Needed.
3. Ambiguous cases are marked "For Review".

Output format:
- Return a JSON array of [search term, classification] pairs.
- Do not reuse the examples above; generate similar but unique queries.
- Output ONLY the array, with no surrounding text or markdown.

Example output:
[
  ["colorful LED desk lamp", "Direct Embedding Search"],
  ["how to organize a home office", "Keyword Extraction Needed"],
  ["lightweight travel backpack", "Direct Embedding Search"],
  ["best budget-friendly laptops", "Keyword Extraction Needed"]
]`

const instructionTemplate = "Generate a list of 20 search terms and their category but loosely based on the following product or a category that this product belongs to:\n %s\n. Only provide the list, DO NOT GIVE ANY INTRODUCTORY TEXT. The only content in the reply should be the list of (search terms, category)."

// Params are the fixed generation parameters for a process.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// BuildRequest constructs the chat request asking for labeled search terms
// about topic. A fresh request is built for every attempt.
func BuildRequest(p Params, topic string) engine.Request {
	return engine.Request{
		Model:       p.Model,
		System:      systemPrompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Messages: []engine.Message{
			{Role: "user", Content: fmt.Sprintf(instructionTemplate, topic)},
		},
	}
}
