package outreach

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

// priceProbeRatio: listings above this share of the buyer's ceiling get a
// gentle negotiation probe.
const priceProbeRatio = 0.85

const defaultBuyerName = "Alex"

// Script is the negotiation context handed to the voice agent for one call.
type Script struct {
	Prompt   string
	Greeting string
}

// BuildScript renders the voice agent instructions for calling about v.
func BuildScript(v models.Vehicle, prefs models.Preferences) Script {
	return Script{
		Prompt:   buildPrompt(v, prefs),
		Greeting: buildGreeting(v),
	}
}

func buildGreeting(v models.Vehicle) string {
	title := titleOf(v)
	if v.DealerName == "" {
		return fmt.Sprintf("Hi there! I'm calling about the %s you have listed. Is that one still available?", title)
	}
	return fmt.Sprintf("Hi there! I'm calling about the %s you have listed at %s. Is that one still available?", title, v.DealerName)
}

func buildPrompt(v models.Vehicle, prefs models.Preferences) string {
	name := firstName(prefs.UserName)
	features := "not specified"
	if len(v.Features) > 0 {
		features = strings.Join(v.Features, ", ")
	}
	year := "unknown"
	if v.Year > 0 {
		year = fmt.Sprint(v.Year)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are phoning a car dealership for a buyer named %s. You are %s's assistant, checking details before they visit. ", name, name)
	b.WriteString("Sound like a friendly person who is seriously shopping, not a script.\n\n")

	b.WriteString("VEHICLE:\n")
	fmt.Fprintf(&b, "- %s\n- Listed at $%s\n- Year: %s\n- Features listed: %s\n\n", titleOf(v), money(v.Price), year, features)

	b.WriteString("FIND OUT, IN NATURAL CONVERSATION:\n")
	b.WriteString("1. Availability. Confirm it is still for sale. If sold, ask whether they have something similar.\n")
	b.WriteString("2. Condition and history. Accidents, major repairs, previous owners, title status, known issues, last service.\n")
	b.WriteString("3. Pricing. Ask for the out-the-door price including tax and fees, any dealer fees, and current promotions.\n")
	if prefs.PriceMax > 0 && v.Price > prefs.PriceMax*priceProbeRatio {
		fmt.Fprintf(&b, "   The listing ($%s) is above the buyer's ideal range. If the dealer seems open, gently ask whether there is flexibility. Do not push.\n", money(v.Price))
	}
	if prefs.WantsFinancing() {
		b.WriteString("4. Financing. Ask whether they offer financing, what rates they see, and whether pre-approval is possible.\n")
	} else {
		b.WriteString("4. Financing. Skip it; the buyer is paying cash.\n")
	}
	if trade := strings.TrimSpace(prefs.TradeIn); trade != "" {
		fmt.Fprintf(&b, "5. Trade-in. If it comes up naturally, mention a %s and ask for a rough trade-in range.\n", trade)
	} else {
		b.WriteString("5. Trade-in. None to discuss.\n")
	}
	b.WriteString("6. Logistics. Opening hours and whether a test drive can be scheduled.\n\n")

	b.WriteString("RULES:\n")
	b.WriteString("- Ask at most two questions per turn, then wait for the answer.\n")
	b.WriteString("- Skip anything the dealer already answered and follow interesting threads.\n")
	fmt.Fprintf(&b, "- If asked who you are, say you are helping %s look for a car.\n", name)
	fmt.Fprintf(&b, "- Never commit to a purchase or share more than %s's first name.\n", name)
	b.WriteString("- Keep the call to a few minutes and wrap up politely once you have the key facts.\n")
	b.WriteString("- When the dealer says goodbye, say a brief farewell and the call will end.")
	return b.String()
}

func titleOf(v models.Vehicle) string {
	if t := strings.TrimSpace(v.Title); t != "" {
		return t
	}
	if v.Year > 0 {
		return strings.TrimSpace(fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model))
	}
	return "vehicle"
}

func firstName(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return defaultBuyerName
}

func money(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	var out strings.Builder
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 && s[i-1] != '-' {
			out.WriteByte(',')
		}
		out.WriteByte(s[i])
	}
	return out.String()
}
