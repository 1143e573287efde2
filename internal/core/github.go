package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graaaaa/sms900/internal/event"
)

const githubSource = "github"

type githubPush struct {
	Repository *struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Commits []json.RawMessage `json:"commits"`
}

type githubCommit struct {
	Message *string `json:"message"`
	Author  *struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"author"`
}

// handleGitHub announces each pushed commit as "[repo] message (author)".
// Malformed payloads and commits are logged, recorded and skipped.
func (c *Core) handleGitHub(ctx context.Context, p event.GitHubWebhook) error {
	var push githubPush
	if err := json.Unmarshal(p.Payload, &push); err != nil {
		c.recordWebhookFailure(ctx, string(p.Payload), fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return nil
	}
	if push.Repository == nil || push.Repository.FullName == "" {
		c.recordWebhookFailure(ctx, string(p.Payload), fmt.Errorf("%w: missing repository", ErrMalformedPayload))
		return nil
	}

	for i, raw := range push.Commits {
		line, err := formatCommit(push.Repository.FullName, raw)
		if err != nil {
			c.recordWebhookFailure(ctx, string(raw), fmt.Errorf("commit %d: %w", i, err))
			continue
		}
		c.reply(line)
	}
	return nil
}

func formatCommit(repo string, raw json.RawMessage) (string, error) {
	var commit githubCommit
	if err := json.Unmarshal(raw, &commit); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if commit.Message == nil {
		return "", fmt.Errorf("%w: missing message", ErrMalformedPayload)
	}
	if commit.Author == nil {
		return "", fmt.Errorf("%w: missing author", ErrMalformedPayload)
	}

	author := commit.Author.Username
	if author == "" {
		author = commit.Author.Name
	}
	summary, _, _ := strings.Cut(*commit.Message, "\n")
	return fmt.Sprintf("[%s] %s (%s)", repo, strings.TrimSpace(summary), author), nil
}

func (c *Core) recordWebhookFailure(ctx context.Context, payload string, cause error) {
	c.logger.Warn("skipping github webhook payload", "error", cause)
	inserted, err := c.log.InsertWebhookFailure(ctx, githubSource, payload, cause.Error())
	if err != nil {
		c.logger.Warn("record webhook failure failed", "error", err)
		return
	}
	if !inserted {
		c.logger.Debug("webhook failure already recorded")
	}
}
