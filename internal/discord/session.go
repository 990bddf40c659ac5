package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Session carries the bot over a Discord gateway connection.
type Session struct {
	dg  *discordgo.Session
	log *slog.Logger
}

func NewSession(token string, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	return &Session{dg: dg, log: logger}, nil
}

func (s *Session) Send(channelID, content string) error {
	_, err := s.dg.ChannelMessageSend(channelID, content)
	return err
}

func (s *Session) DirectMessage(userID, content string) error {
	ch, err := s.dg.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = s.dg.ChannelMessageSend(ch.ID, content)
	return err
}

// Run feeds incoming messages to bot until ctx is cancelled.
func (s *Session) Run(ctx context.Context, bot *Bot) error {
	remove := s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		msg := Message{
			ChannelID:  m.ChannelID,
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Content:    m.Content,
		}
		for _, u := range m.Mentions {
			msg.Mentions = append(msg.Mentions, u.ID)
		}
		if err := bot.Handle(ctx, msg); err != nil {
			s.log.Warn("message not answered", "channel", m.ChannelID, "err", err)
		}
	})
	defer remove()

	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	s.log.Info("discord gateway connected")
	<-ctx.Done()
	return s.dg.Close()
}
