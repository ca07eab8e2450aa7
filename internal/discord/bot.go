package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/NgigiN/stkpush/internal/payment"
	"github.com/NgigiN/stkpush/internal/storage"
)

type Ledger interface {
	RecentTransactions(ctx context.Context, limit int) ([]storage.Transaction, error)
}

type PaidChecker interface {
	Paid(ctx context.Context, phoneNumber string, amount int64) (bool, error)
}

type sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot posts payment outcomes to an operations channel and answers a couple of
// lookup commands there.
type Bot struct {
	session   *discordgo.Session
	send      sender
	ledger    Ledger
	payments  PaidChecker
	channelID string
	log       *zap.Logger
}

func NewBot(token, channelID string, ledger Ledger, payments PaidChecker, log *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	bot := &Bot{
		session:   session,
		send:      session,
		ledger:    ledger,
		payments:  payments,
		channelID: channelID,
		log:       log,
	}

	session.AddHandler(bot.handleMessage)
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (b *Bot) Stop() {
	b.session.Close()
}

// PaymentResolved implements payment.Observer.
func (b *Bot) PaymentResolved(_ context.Context, ev payment.Event) {
	if _, err := b.send.ChannelMessageSend(b.channelID, formatEvent(ev)); err != nil {
		b.log.Warn("failed to post payment outcome", zap.String("account_no", ev.AccountNo), zap.Error(err))
	}
}

func formatEvent(ev payment.Event) string {
	switch {
	case ev.Succeeded():
		return fmt.Sprintf("✅ Ksh%d received from %s, receipt **%s**", ev.Amount, ev.PhoneNumber, ev.Outcome.Receipt)
	case ev.Outcome != nil:
		return fmt.Sprintf("⚠️ Ksh%d received from %s (receipt **%s**) but not recorded: %v", ev.Amount, ev.PhoneNumber, ev.Outcome.Receipt, ev.Err)
	default:
		return fmt.Sprintf("❌ Ksh%d push to %s failed: %v", ev.Amount, ev.PhoneNumber, ev.Err)
	}
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return //bot's messages
	}
	if m.ChannelID != b.channelID {
		return //specific to the channel
	}

	reply := b.respond(context.Background(), m.Content)
	if reply == "" {
		return
	}
	if _, err := b.send.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.log.Warn("failed to reply", zap.Error(err))
	}
}

func (b *Bot) respond(ctx context.Context, content string) string {
	args := strings.Fields(content)
	if len(args) == 0 {
		return ""
	}

	switch args[0] {
	case "!payments":
		return b.recentPayments(ctx)
	case "!paid":
		if len(args) != 3 {
			return "Usage: !paid <phone> <amount>"
		}
		amount, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || amount <= 0 {
			return fmt.Sprintf("Invalid amount: %s", args[2])
		}
		paid, err := b.payments.Paid(ctx, args[1], amount)
		if err != nil {
			return fmt.Sprintf("Lookup failed: %v", err)
		}
		if paid {
			return fmt.Sprintf("%s has a Ksh%d payment on record.", args[1], amount)
		}
		return fmt.Sprintf("No Ksh%d payment on record for %s.", amount, args[1])
	}
	return ""
}

func (b *Bot) recentPayments(ctx context.Context) string {
	const limit = 10

	txs, err := b.ledger.RecentTransactions(ctx, limit)
	if err != nil {
		return fmt.Sprintf("Failed to get transactions: %v", err)
	}
	if len(txs) == 0 {
		return "No transactions found."
	}

	var sb strings.Builder
	sb.WriteString("📊 **Recent STK pushes**\n\n")
	var total int64
	for _, tx := range txs {
		receipt := "-"
		if tx.Paid() {
			receipt = *tx.MpesaReceipt
			total += tx.Amount
		}
		fmt.Fprintf(&sb, "• **Ksh%d** from %s [%s] %s\n  %s\n",
			tx.Amount, tx.PhoneNumber, tx.SyncStatus, receipt,
			tx.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(&sb, "\n**Total received**: Ksh%d (%d transactions)", total, len(txs))
	return sb.String()
}
