package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graaaaa/sms900/internal/chat"
	"github.com/graaaaa/sms900/internal/event"
	"github.com/graaaaa/sms900/internal/mms"
	"github.com/graaaaa/sms900/internal/phone"
	"github.com/graaaaa/sms900/internal/store"
)

func (c *Core) handleSendSMS(ctx context.Context, p event.SendSMS) error {
	number, err := c.resolveDestination(ctx, p.Destination)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("<%s> %s", phone.NickFromHostmask(p.Hostmask), p.Message)
	c.sendSMS(ctx, p.Hostmask, number, body)
	return nil
}

// resolveDestination accepts a number or a phonebook nickname.
func (c *Core) resolveDestination(ctx context.Context, dest string) (string, error) {
	number, err := phone.Canonicalize(dest)
	if err == nil {
		return number, nil
	}

	nick, err := phone.ValidNickname(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a valid number or existing nickname", ErrInvalidDestination, dest)
	}
	number, err = c.phonebook.GetNumber(ctx, nick)
	if errors.Is(err, store.ErrUnknownEntry) {
		return "", fmt.Errorf("%w: %s is not a valid number or existing nickname", ErrInvalidDestination, dest)
	}
	return number, err
}

// sendSMS reports carrier failures on the channel instead of returning them.
func (c *Core) sendSMS(ctx context.Context, sender, number, body string) {
	if c.carrier == nil {
		c.reply(fmt.Sprintf("Failed to send sms: %v", notConfigured("carrier")))
		return
	}

	res, err := c.carrier.Send(ctx, number, c.fromNumber, body)
	if err != nil {
		c.logger.Warn("send sms failed", "to", number, "error", err)
		c.reply(fmt.Sprintf("Failed to send sms: %v", err))
		return
	}

	c.reply(fmt.Sprintf("Sent %d sms to number %s", res.Segments, number))
	if err := c.log.LogOutgoing(ctx, sender, number, body, res.Segments); err != nil {
		c.logger.Warn("log outgoing sms failed", "to", number, "error", err)
	}
}

func (c *Core) handleAddEntry(ctx context.Context, p event.AddEntry) error {
	nick, err := phone.ValidNickname(p.Nickname)
	if err != nil {
		return err
	}

	if p.Email != "" {
		email, err := phone.ValidEmail(p.Email)
		if err != nil {
			return err
		}
		if err := c.phonebook.AddEmail(ctx, nick, email); err != nil {
			return err
		}
		c.reply(fmt.Sprintf("Added %s with email %s", nick, email))
		return nil
	}

	number, err := phone.Canonicalize(p.Number)
	if err != nil {
		return err
	}
	if err := c.phonebook.AddNumber(ctx, nick, number); err != nil {
		return err
	}
	c.reply(fmt.Sprintf("Added %s with number %s", nick, number))
	return nil
}

func (c *Core) handleDelEntry(ctx context.Context, p event.DelEntry) error {
	if p.Email != "" {
		email, err := phone.ValidEmail(p.Email)
		if err != nil {
			return err
		}
		nick, err := c.phonebook.GetNicknameFromEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := c.phonebook.DelEmail(ctx, nick, email); err != nil {
			return err
		}
		c.reply(fmt.Sprintf("Removed email %s from %s", email, nick))
		return nil
	}

	nick, err := phone.ValidNickname(p.Nickname)
	if err != nil {
		return err
	}
	number, err := c.phonebook.GetNumber(ctx, nick)
	if err != nil {
		return err
	}
	if err := c.phonebook.DelEntry(ctx, nick); err != nil {
		return err
	}
	c.reply(fmt.Sprintf("Removed contact %s (number: %s)", nick, number))
	return nil
}

func (c *Core) handleLookup(ctx context.Context, p event.LookupCarrier) error {
	number, err := c.resolveDestination(ctx, p.Number)
	if err != nil {
		return err
	}
	if c.carrier == nil {
		c.reply(fmt.Sprintf("Failed to lookup number: %v", notConfigured("carrier")))
		return nil
	}

	res, err := c.carrier.Lookup(ctx, number)
	if err != nil {
		c.logger.Warn("carrier lookup failed", "number", number, "error", err)
		c.reply(fmt.Sprintf("Failed to lookup number: %v", err))
		return nil
	}
	c.reply(fmt.Sprintf("%s is %s, carrier: %s", number, res.Type, res.Name))
	return nil
}

func (c *Core) handleSMSReceived(ctx context.Context, p event.SMSReceived) error {
	if err := c.log.LogIncoming(ctx, p.From, p.Body); err != nil {
		c.logger.Warn("log incoming sms failed", "from", p.From, "error", err)
	}

	if c.fetcher != nil && c.mmsPattern != nil {
		if m := c.mmsPattern.FindStringSubmatch(p.Body); len(m) > 1 {
			return c.fetchMMS(ctx, p.From, m[1])
		}
	}

	sender := c.displayName(ctx, p.From)
	c.reply(fmt.Sprintf("<%s> %s", sender, p.Body))
	if c.chat != nil {
		c.chat.RecordSMS(sender, p.Body)
	}
	return nil
}

func (c *Core) fetchMMS(ctx context.Context, from, code string) error {
	c.logger.Info("fetching mms", "from", from, "code", code)
	msg, err := c.fetcher.Fetch(ctx, code)
	if err != nil {
		c.logger.Warn("fetch mms failed", "from", from, "code", code, "error", err)
		c.reply(fmt.Sprintf("Failed to fetch MMS from %s: %v", c.displayName(ctx, from), err))
		return nil
	}
	if msg.Sender == "" {
		msg.Sender = from
	}
	return c.handleMMSReceived(ctx, *msg)
}

func (c *Core) handleMMSReceived(ctx context.Context, p event.MMSReceived) error {
	if c.media == nil {
		return notConfigured("mms storage")
	}

	saved, err := c.media.Save(p)
	if err != nil {
		if errors.Is(err, mms.ErrNoContent) {
			c.logger.Warn("mms without content", "sender", p.Sender)
			return nil
		}
		return err
	}

	if c.indexer != nil {
		if err := c.indexer.GenerateLocalIndex(saved.Dir); err != nil {
			c.logger.Warn("generate local index failed", "dir", saved.Dir, "error", err)
		}
		if err := c.indexer.GenerateGlobalIndex(); err != nil {
			c.logger.Warn("generate global index failed", "error", err)
		}
	}

	sender := c.displayName(ctx, p.Sender)
	summary := mms.Summarize(saved, sender)
	c.reply(summary.Line)
	if summary.Unsummarized {
		c.reply("All files: " + summary.DownloadURL)
	}
	if c.chat != nil {
		c.chat.RecordSMS(sender, summary.Line)
	}
	return nil
}

// displayName maps a number or email address to its phonebook nickname,
// falling back to the raw sender.
func (c *Core) displayName(ctx context.Context, sender string) string {
	var (
		nick string
		err  error
	)
	if phone.IsEmail(sender) {
		nick, err = c.phonebook.GetNicknameFromEmail(ctx, strings.ToLower(sender))
	} else {
		nick, err = c.phonebook.GetNickname(ctx, sender)
	}
	if err != nil {
		if !errors.Is(err, store.ErrUnknownEntry) {
			c.logger.Warn("nickname lookup failed", "sender", sender, "error", err)
		}
		return sender
	}
	return nick
}

func (c *Core) handleReindex() error {
	if c.indexer == nil {
		return notConfigured("mms storage")
	}
	n, err := c.indexer.ReindexAll()
	if err != nil {
		return err
	}
	c.reply(fmt.Sprintf("Reindexed %d messages", n))
	return nil
}

func (c *Core) handleStats(ctx context.Context) error {
	stats, err := c.log.Statistics(ctx)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("Received %d sms, sent %d sms", stats.TotalIn, stats.TotalOut)
	if stats.LastAt != "" {
		line += ", last at " + stats.LastAt
	}
	c.reply(line)

	if len(stats.TopRecipients) > 0 {
		top := make([]string, 0, len(stats.TopRecipients))
		for _, rc := range stats.TopRecipients {
			top = append(top, fmt.Sprintf("%s (%d)", c.displayName(ctx, rc.Recipient), rc.Segments))
		}
		c.reply("Top recipients: " + strings.Join(top, ", "))
	}
	return nil
}

func (c *Core) handleCompletion(ctx context.Context, p event.TriggerCompletion) error {
	if c.chat == nil {
		return notConfigured("chat")
	}

	reply, err := c.chat.Respond(ctx, p.Lines, p.Reminder)
	if err != nil {
		c.logger.Warn("completion failed", "error", err)
		return nil
	}

	if reply.Text != "" {
		c.reply(reply.Text)
	}
	for _, a := range reply.Actions {
		c.runAction(ctx, a)
	}
	return nil
}

// runAction executes a command embedded in a completion. Failures are
// reported like user errors and do not abort the remaining actions.
func (c *Core) runAction(ctx context.Context, a chat.Action) {
	switch a.Kind {
	case chat.ActionSMS:
		nick := c.nick()
		number, err := c.resolveDestination(ctx, a.Target)
		if err != nil {
			c.reply("Error: " + err.Error())
			return
		}
		c.sendSMS(ctx, nick, number, fmt.Sprintf("<%s> %s", nick, a.Message))
	case chat.ActionRemind:
		at, err := c.chat.ScheduleReminder(a.Target, a.Message)
		if err != nil {
			c.reply("Error: " + err.Error())
			return
		}
		c.reply("Reminder set for " + at.Format("2006-01-02 15:04"))
	default:
		c.logger.Warn("unknown chat action", "kind", a.Kind)
	}
}
