package openai

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

const summaryPrompt = `You are a car-buying analyst. You just received the transcript of a phone call between an AI assistant and a car dealership. Extract every useful fact from the conversation and produce a structured summary.

VEHICLE CONTEXT:
- Title: %s
- Listed price: $%.0f
- Listing URL: %s

TRANSCRIPT:
%s

If information was NOT discussed or is unknown, use null. Do NOT guess; only extract what was actually said.

Respond with ONLY valid JSON (no markdown fences, no extra text):
{
  "is_available": true | false | null,
  "condition": {
    "accident_history": "none reported" | "yes - details" | null,
    "title_status": "clean" | "salvage" | "rebuilt" | null,
    "overall_notes": "free-text summary of condition discussion"
  },
  "pricing": {
    "listed_price": %.0f,
    "out_the_door_price": number | null,
    "is_negotiable": true | false | null,
    "best_quoted_price": number | null
  },
  "financing": {
    "available": true | false | null,
    "apr_range": "e.g. 3.9%% - 6.9%%" | null
  },
  "dealer_impression": {
    "responsiveness": "helpful" | "neutral" | "evasive" | "pushy",
    "willingness_to_deal": "high" | "medium" | "low" | null
  },
  "red_flags": ["anything concerning, e.g. 'avoided answering about accidents'"],
  "key_takeaways": "2-3 sentence summary of what the buyer should know",
  "recommendation": "worth visiting" | "neutral" | "skip"
}`

// BuildPrompt renders the extraction prompt for one call.
func BuildPrompt(v models.Vehicle, transcript string) string {
	title := strings.TrimSpace(v.Title)
	if title == "" {
		title = "vehicle"
	}
	return fmt.Sprintf(summaryPrompt, title, v.Price, v.ListingURL, transcript, v.Price)
}
