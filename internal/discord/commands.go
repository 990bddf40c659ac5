package discord

import (
	"regexp"
	"strings"
)

// Message is the part of a chat message the bot reads.
type Message struct {
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string
	// Mentions holds user IDs in the order Discord reported them.
	Mentions []string
}

type command struct {
	name string
	args []string
}

// parse splits "!sb gift @bob 1.50" into the command name and its
// arguments. A bare prefix asks for help.
func parse(prefix, content string) (command, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || !strings.EqualFold(fields[0], prefix) {
		return command{}, false
	}
	if len(fields) == 1 {
		return command{name: "help"}, true
	}
	return command{name: strings.ToLower(fields[1]), args: fields[2:]}, true
}

func (c command) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

// rest joins the arguments from i on.
func (c command) rest(i int) string {
	if i >= len(c.args) {
		return ""
	}
	return strings.Join(c.args[i:], " ")
}

var mentionRE = regexp.MustCompile(`^<@!?(\d+)>$`)

func mentionID(arg string) (string, bool) {
	m := mentionRE.FindStringSubmatch(strings.TrimSpace(arg))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// target picks the user a command points at: the first mention among the
// arguments, else the first mention Discord attached to the message.
func target(m Message, c command) (string, bool) {
	for _, a := range c.args {
		if id, ok := mentionID(a); ok {
			return id, true
		}
	}
	if len(m.Mentions) > 0 {
		return m.Mentions[0], true
	}
	return "", false
}

// amountArg returns the first argument that is not a mention.
func amountArg(c command) string {
	for _, a := range c.args {
		if _, ok := mentionID(a); !ok {
			return a
		}
	}
	return ""
}

const helpText = "**Southbag Banking** (fees apply to everything)\n" +
	"`open` `home` `balance` `history [n]` `clear` `notify` `fee`\n" +
	"`transfer <amount> <recipient>` `deposit <amount>` `upgrade`\n" +
	"`gift @user <amount>` `rob @user`\n" +
	"`coinflip <bet> <heads|tails>` `slots <bet>` `cards <bet>` `beg` `daily`\n" +
	"`loan <amount>` `loan status|repay|default`\n" +
	"`crypto prices` `crypto buy <coin> <amount>` `crypto sell <coin>` `portfolio`\n" +
	"`insurance [buy <plan>]` `claim <reason>`\n" +
	"`job [apply|quit]` `work`\n" +
	"`heist start|join|go`"
