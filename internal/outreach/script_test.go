package outreach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiranshivaraju/dealerdial/pkg/models"
)

func TestBuildScript_Greeting(t *testing.T) {
	v := models.Vehicle{Title: "2020 Toyota Camry SE", DealerName: "Bay Motors"}
	s := BuildScript(v, models.Preferences{})
	assert.Equal(t, "Hi there! I'm calling about the 2020 Toyota Camry SE you have listed at Bay Motors. Is that one still available?", s.Greeting)

	s = BuildScript(models.Vehicle{Year: 2019, Make: "Honda", Model: "Civic"}, models.Preferences{})
	assert.Contains(t, s.Greeting, "the 2019 Honda Civic you have listed.")
}

func TestBuildScript_BuyerName(t *testing.T) {
	s := BuildScript(models.Vehicle{}, models.Preferences{UserName: "Jordan Lee"})
	assert.Contains(t, s.Prompt, "a buyer named Jordan.")
	assert.NotContains(t, s.Prompt, "Lee")

	s = BuildScript(models.Vehicle{}, models.Preferences{})
	assert.Contains(t, s.Prompt, "a buyer named Alex.")
}

func TestBuildScript_PriceProbe(t *testing.T) {
	v := models.Vehicle{Title: "Camry", Price: 27000}

	s := BuildScript(v, models.Preferences{PriceMax: 30000})
	assert.Contains(t, s.Prompt, "Listed at $27,000")
	assert.Contains(t, s.Prompt, "above the buyer's ideal range")

	s = BuildScript(v, models.Preferences{PriceMax: 40000})
	assert.NotContains(t, s.Prompt, "ideal range")

	s = BuildScript(v, models.Preferences{})
	assert.NotContains(t, s.Prompt, "ideal range")
}

func TestBuildScript_FinancingAndTradeIn(t *testing.T) {
	v := models.Vehicle{Title: "Camry", Price: 20000}

	cash := BuildScript(v, models.Preferences{Finance: "cash"})
	assert.Contains(t, cash.Prompt, "paying cash")
	assert.Contains(t, cash.Prompt, "None to discuss")

	financed := BuildScript(v, models.Preferences{Finance: "finance", TradeIn: "2012 Mazda 3"})
	assert.Contains(t, financed.Prompt, "offer financing")
	assert.Contains(t, financed.Prompt, "mention a 2012 Mazda 3")
}

func TestBuildScript_Features(t *testing.T) {
	s := BuildScript(models.Vehicle{Features: []string{"sunroof", "AWD"}}, models.Preferences{})
	assert.Contains(t, s.Prompt, "Features listed: sunroof, AWD")

	s = BuildScript(models.Vehicle{}, models.Preferences{})
	assert.Contains(t, s.Prompt, "Features listed: not specified")
	assert.True(t, strings.Contains(s.Prompt, "Year: unknown"))
}

func TestMoney(t *testing.T) {
	tests := map[float64]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		21500.4: "21,500",
		1234567: "1,234,567",
	}
	for in, want := range tests {
		assert.Equal(t, want, money(in))
	}
}
