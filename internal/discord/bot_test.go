package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"southbag/internal/game"
	"southbag/internal/ledger"
	"southbag/internal/ledger/memory"
)

type sent struct {
	to, text string
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sent
	dms      []sent
}

func (f *fakeSender) Send(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sent{channelID, content})
	return nil
}

func (f *fakeSender) DirectMessage(userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, sent{userID, content})
	return nil
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.messages[len(f.messages)-1].text
}

// dial returns whatever value it is set to.
type dial struct {
	mu sync.Mutex
	v  float64
}

func (d *dial) Float64() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.v
}

func (d *dial) set(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v = v
}

type botHarness struct {
	bot  *Bot
	out  *fakeSender
	rand *dial
}

func newBotHarness(channels ...string) *botHarness {
	h := &botHarness{out: &fakeSender{}, rand: &dial{v: 0.35}}
	svc := game.NewService(memory.New(), nil, game.WithRandom(h.rand))
	h.bot = NewBot(svc, h.out, "!sb", channels, nil)
	return h
}

func (h *botHarness) say(t *testing.T, author, content string, mentions ...string) string {
	t.Helper()
	err := h.bot.Handle(context.Background(), Message{
		ChannelID:  "c1",
		AuthorID:   author,
		AuthorName: "user" + author,
		Content:    content,
		Mentions:   mentions,
	})
	if err != nil {
		t.Fatalf("handle %q: %v", content, err)
	}
	return h.out.last(t)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		name string
		args int
	}{
		{"!sb", true, "help", 0},
		{"!SB Balance", true, "balance", 0},
		{"!sb transfer 5 my landlord", true, "transfer", 3},
		{"  !sb   gift <@42>  1.50 ", true, "gift", 2},
		{"!sbx balance", false, "", 0},
		{"hello !sb", false, "", 0},
		{"", false, "", 0},
	}
	for _, tc := range tests {
		c, ok := parse("!sb", tc.in)
		if ok != tc.ok || c.name != tc.name || len(c.args) != tc.args {
			t.Fatalf("%q: ok=%v cmd=%+v", tc.in, ok, c)
		}
	}
	c, _ := parse("!sb", "!sb transfer 5 my landlord")
	if c.rest(1) != "my landlord" || c.arg(5) != "" {
		t.Fatalf("rest=%q", c.rest(1))
	}
}

func TestTargetAndAmount(t *testing.T) {
	c, _ := parse("!sb", "!sb gift 1.50 <@!42>")
	if id, ok := target(Message{}, c); !ok || id != "42" {
		t.Fatalf("target=%q", id)
	}
	if amountArg(c) != "1.50" {
		t.Fatalf("amount=%q", amountArg(c))
	}
	c, _ = parse("!sb", "!sb rob @someone")
	if id, ok := target(Message{Mentions: []string{"7"}}, c); !ok || id != "7" {
		t.Fatalf("fallback target=%q", id)
	}
	if _, ok := target(Message{}, c); ok {
		t.Fatalf("plain text treated as a mention")
	}
}

func TestOpenAndBalance(t *testing.T) {
	h := newBotHarness()
	reply := h.say(t, "1", "!sb open")
	if !strings.Contains(reply, "$1.225") || !strings.Contains(reply, "-SBAG-") {
		t.Fatalf("reply=%q", reply)
	}
	reply = h.say(t, "1", "!sb balance")
	if !strings.Contains(reply, "$1.215") || !strings.Contains(reply, "$0.01") {
		t.Fatalf("reply=%q", reply)
	}
	reply = h.say(t, "1", "!sb history 2")
	if !strings.Contains(reply, "Balance inquiry fee") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestMysteryFee(t *testing.T) {
	h := newBotHarness()
	if reply := h.say(t, "1", "!sb fee"); !strings.Contains(reply, "don't have an account") {
		t.Fatalf("reply=%q", reply)
	}
	h.say(t, "1", "!sb open")
	reply := h.say(t, "1", "!sb fee")
	label := game.MysteryFees[int(0.35*float64(len(game.MysteryFees)))]
	if !strings.Contains(reply, "$0.18") || !strings.Contains(reply, label) || !strings.Contains(reply, "$1.045") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestHomeSummary(t *testing.T) {
	h := newBotHarness()
	h.say(t, "1", "!sb open")
	reply := h.say(t, "1", "!sb home")
	for _, want := range []string{"-SBAG-", "$1.225", "unemployed", "Loan: none", "0 positions", "uninsured", "Account opening fee"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("%q missing from %q", want, reply)
		}
	}
	if again := h.say(t, "1", "!sb me"); !strings.Contains(again, "$1.225") {
		t.Fatalf("home charged a fee: %q", again)
	}

	h.say(t, "1", "!sb loan 5")
	if reply := h.say(t, "1", "!sb me"); !strings.Contains(reply, "Loan: owe $5.00 on $5.00") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestChannelFilter(t *testing.T) {
	h := newBotHarness("c9")
	err := h.bot.Handle(context.Background(), Message{ChannelID: "c1", AuthorID: "1", Content: "!sb open"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.out.messages) != 0 {
		t.Fatalf("answered outside watched channels")
	}
}

func TestGiftNotifiesSubscribers(t *testing.T) {
	h := newBotHarness()
	h.say(t, "1", "!sb open")
	h.say(t, "2", "!sb open")
	if reply := h.say(t, "2", "!sb notify"); !strings.Contains(reply, "on") {
		t.Fatalf("reply=%q", reply)
	}

	reply := h.say(t, "1", "!sb gift <@2> 0.50", "2")
	if !strings.Contains(reply, "Gifted $0.50") {
		t.Fatalf("reply=%q", reply)
	}
	if len(h.out.dms) != 1 || h.out.dms[0].to != "2" || !strings.Contains(h.out.dms[0].text, "gifted you $0.50") {
		t.Fatalf("dms=%+v", h.out.dms)
	}

	h.say(t, "2", "!sb notify")
	h.say(t, "1", "!sb gift <@2> 0.10", "2")
	if len(h.out.dms) != 1 {
		t.Fatalf("dm sent after opting out: %+v", h.out.dms)
	}
}

func TestRobNotifiesVictim(t *testing.T) {
	h := newBotHarness()
	h.say(t, "1", "!sb open")
	h.say(t, "2", "!sb open")
	h.say(t, "2", "!sb notify")

	h.rand.set(0.9)
	reply := h.say(t, "1", "!sb rob <@2>")
	if !strings.Contains(reply, "You lifted") {
		t.Fatalf("reply=%q", reply)
	}
	if len(h.out.dms) != 1 || !strings.Contains(h.out.dms[0].text, "mysteriously disappeared") {
		t.Fatalf("dms=%+v", h.out.dms)
	}
}

func TestRejectionReplies(t *testing.T) {
	h := newBotHarness()
	if reply := h.say(t, "1", "!sb balance"); !strings.Contains(reply, "`!sb open`") {
		t.Fatalf("reply=%q", reply)
	}
	h.say(t, "1", "!sb open")
	// 5 + 0.50 + 0.75 + 0.02
	if reply := h.say(t, "1", "!sb transfer 5 Mom"); !strings.Contains(reply, "You have $1.225, that needs $6.27") {
		t.Fatalf("reply=%q", reply)
	}
	h.say(t, "1", "!sb beg")
	if reply := h.say(t, "1", "!sb beg"); !strings.Contains(reply, "Try again in") {
		t.Fatalf("reply=%q", reply)
	}
	if reply := h.say(t, "1", "!sb gift"); !strings.Contains(reply, "not how `gift` works") {
		t.Fatalf("reply=%q", reply)
	}
	if reply := h.say(t, "1", "!sb deposit lots"); !strings.Contains(reply, "not an amount") {
		t.Fatalf("reply=%q", reply)
	}
	if reply := h.say(t, "1", "!sb loan 50"); !strings.Contains(reply, "more than $10.00") {
		t.Fatalf("reply=%q", reply)
	}
	if reply := h.say(t, "1", "!sb launder"); !strings.Contains(reply, "Unknown command") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestInsuranceListsPlansWithoutPolicy(t *testing.T) {
	h := newBotHarness()
	h.say(t, "1", "!sb open")
	reply := h.say(t, "1", "!sb insurance")
	for _, id := range game.PlanIDs() {
		if !strings.Contains(reply, "`"+id+"`") {
			t.Fatalf("plan %s missing from %q", id, reply)
		}
	}
}

type downStore struct{}

func (downStore) RunAtomic(context.Context, func(ledger.Tx) error) error {
	return errors.New("too many connections")
}

func (downStore) Close() error { return nil }

func TestStorageFailureReply(t *testing.T) {
	out := &fakeSender{}
	bot := NewBot(game.NewService(downStore{}, nil), out, "", nil, nil)
	if err := bot.Handle(context.Background(), Message{ChannelID: "c", AuthorID: "1", Content: "!sb open"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply := out.last(t); !strings.Contains(reply, "technical difficulties") {
		t.Fatalf("reply=%q", reply)
	}
}
