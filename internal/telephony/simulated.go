package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Outcome scripts one simulated call.
type Outcome struct {
	// PlaceErr is returned synchronously from PlaceCall.
	PlaceErr error
	// FailureReason, when set, fails the call after RingDelay instead of answering.
	FailureReason string
	// Silent suppresses every notification, as if the provider lost the call.
	Silent     bool
	Transcript string
	Duration   int
	RingDelay  time.Duration
	TalkDelay  time.Duration
}

// ScriptFunc decides the outcome of a call.
type ScriptFunc func(req PlaceCallRequest) Outcome

// SimulatedClient answers every call with a canned dealer conversation and
// reports through the Router, the same path real webhook events take.
type SimulatedClient struct {
	router *Router
	script ScriptFunc
	hungUp chan string
	count  atomic.Int64
}

// SimulatedOption configures a SimulatedClient.
type SimulatedOption func(*SimulatedClient)

// WithScript replaces the stock dealer conversations.
func WithScript(fn ScriptFunc) SimulatedOption {
	return func(c *SimulatedClient) { c.script = fn }
}

// NewSimulatedClient creates a client that delivers notifications to router.
func NewSimulatedClient(router *Router, opts ...SimulatedOption) *SimulatedClient {
	c := &SimulatedClient{
		router: router,
		hungUp: make(chan string, 64),
	}
	c.script = c.stockScript
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SimulatedClient) Name() string { return "simulated" }

func (c *SimulatedClient) Ready(ctx context.Context) error { return ctx.Err() }

func (c *SimulatedClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, classifyError(err)
	}
	out := c.script(req)
	if out.PlaceErr != nil {
		return Handle{}, out.PlaceErr
	}

	go c.play(req.CallID, out)

	return Handle{CallID: req.CallID, ProviderCallID: "sim-" + uuid.NewString()}, nil
}

// Hangup records the call id; HungUp exposes it to tests.
func (c *SimulatedClient) Hangup(_ context.Context, callID string) error {
	select {
	case c.hungUp <- callID:
	default:
	}
	return nil
}

// HungUp yields the ids of calls that were hung up.
func (c *SimulatedClient) HungUp() <-chan string {
	return c.hungUp
}

func (c *SimulatedClient) play(callID string, out Outcome) {
	if out.Silent {
		return
	}
	time.Sleep(out.RingDelay)

	if out.FailureReason != "" {
		c.deliver(Notification{CallID: callID, Kind: NotificationFailed, FailureReason: out.FailureReason})
		return
	}
	c.deliver(Notification{CallID: callID, Kind: NotificationAnswered})

	time.Sleep(out.TalkDelay)
	c.deliver(Notification{
		CallID:          callID,
		Kind:            NotificationCompleted,
		Transcript:      out.Transcript,
		DurationSeconds: out.Duration,
	})
}

func (c *SimulatedClient) deliver(n Notification) {
	if err := c.router.Deliver(n); err != nil {
		slog.Debug("simulated notification dropped", "call_id", n.CallID, "event", n.Kind, "error", err)
	}
}

type dealerScript struct {
	available bool
	condition string
	discount  float64
	financing bool
}

var stockDealers = []dealerScript{
	{available: true, condition: "Clean title, one previous owner, no accidents reported", discount: 0.92, financing: true},
	{available: true, condition: "Two previous owners, minor fender bender in 2022, fully repaired", discount: 0.88, financing: true},
	{available: false, condition: "Sold yesterday"},
	{available: true, condition: "Clean title, fleet vehicle, regular maintenance on file", discount: 0.95, financing: true},
}

func (c *SimulatedClient) stockScript(req PlaceCallRequest) Outcome {
	n := c.count.Add(1) - 1
	d := stockDealers[int(n)%len(stockDealers)]
	return Outcome{
		Transcript: dealerTranscript(req, d),
		Duration:   90 + int(n%4)*30,
		RingDelay:  300 * time.Millisecond,
		TalkDelay:  time.Second,
	}
}

func dealerTranscript(req PlaceCallRequest, d dealerScript) string {
	title := req.Title
	if title == "" {
		title = "vehicle"
	}
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	if !d.available {
		line("Agent: Hi there! I'm calling about the %s you have listed. Is that one still available?", title)
		line("Dealer: Unfortunately that one sold yesterday. But we have a few similar ones if you're interested.")
		line("Agent: Ah, that's too bad. What do you have in a similar range?")
		line("Dealer: We have a couple other options. Want me to send you some info?")
		line("Agent: Sure, that would be great. Thanks for letting me know!")
		return strings.TrimSuffix(b.String(), "\n")
	}

	price := req.ListedPrice
	if price <= 0 {
		price = 25000
	}
	negotiated := float64(int(price * d.discount))

	line("Agent: Hi there! I'm calling about the %s you have listed at %s. Is that one still available?", title, req.DealerName)
	line("Dealer: Yes, it is! Are you looking to come in and see it?")
	line("Agent: Definitely interested. Can you tell me about the condition? Any accident history or mechanical issues?")
	line("Dealer: %s. It's in great shape.", d.condition)
	line("Agent: Good to hear. What's the best out-the-door price on that one?")
	line("Dealer: The listed price is %s, and with taxes and fees it comes to about %s out the door.", dollars(price), dollars(negotiated+1200))
	line("Agent: Is there any flexibility on that price?")
	line("Dealer: We could probably do %s plus tax and fees if you come in this week.", dollars(negotiated))
	if d.financing {
		line("Agent: Do you guys offer financing? What kind of rates?")
		line("Dealer: Yes, we work with several lenders. Rates are running about 4.9 to 7.9 percent depending on credit.")
	}
	line("Agent: What are your hours? Could I schedule a test drive?")
	line("Dealer: We're open Monday through Saturday, 9 to 7. Just come on by or call ahead.")
	line("Agent: Great, thanks for all the info. I'll pass this along.")
	line("Dealer: Sounds good, we'll be here!")
	return strings.TrimSuffix(b.String(), "\n")
}

// dollars formats v as $12,345.
func dollars(v float64) string {
	s := fmt.Sprintf("%d", int64(v))
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return "$" + string(out)
}

var _ Client = (*SimulatedClient)(nil)
