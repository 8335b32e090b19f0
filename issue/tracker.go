package issue

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"

	"github.com/replayrig/replayrig/gh"
)

var (
	ErrMissingRepo  = gh.ErrMissingRepo
	ErrMissingToken = gh.ErrMissingToken
)

// HTTPError is a failed tracker call with its status and truncated payload.
type HTTPError = gh.HTTPError

const dryRunRepo = "owner/replayrig-dry-run"

// Created describes a filed issue together with what was sent.
type Created struct {
	URL    string   `json:"url"`
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Tracker files issues and comments.
type Tracker interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (Created, error)
	Comment(ctx context.Context, number int, body string) (string, error)
}

// DryRun pretends to file issues and returns deterministic URLs.
type DryRun struct {
	Repo string
}

func (d DryRun) repo() string {
	if d.Repo == "" {
		return dryRunRepo
	}
	return d.Repo
}

func (d DryRun) CreateIssue(_ context.Context, title, body string, labels []string) (Created, error) {
	return Created{
		URL:    fmt.Sprintf("https://github.com/%s/issues/dry-run", d.repo()),
		Number: 0,
		Title:  title,
		Body:   body,
		Labels: nonNil(labels),
	}, nil
}

func (d DryRun) Comment(_ context.Context, number int, _ string) (string, error) {
	return fmt.Sprintf("https://github.com/%s/issues/%d#dry-run-comment", d.repo(), number), nil
}

// GitHub files issues through the GitHub REST API.
type GitHub struct {
	logger zerolog.Logger
	client *github.Client
	repo   gh.Repo
}

func NewGitHub(logger zerolog.Logger, client *github.Client, repo gh.Repo) *GitHub {
	return &GitHub{
		logger: logger,
		client: client,
		repo:   repo,
	}
}

func (g *GitHub) CreateIssue(ctx context.Context, title, body string, labels []string) (Created, error) {
	labels = nonNil(labels)
	iss, resp, err := g.client.Issues.Create(ctx, g.repo.Owner, g.repo.Name, &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	})
	if err = gh.Wrap("create issue", resp, err); err != nil {
		return Created{}, err
	}

	g.logger.Info().Str("repo", g.repo.String()).Int("number", iss.GetNumber()).Msg("Issue created")
	return Created{
		URL:    iss.GetHTMLURL(),
		Number: iss.GetNumber(),
		Title:  title,
		Body:   body,
		Labels: labels,
	}, nil
}

func (g *GitHub) Comment(ctx context.Context, number int, body string) (string, error) {
	c, resp, err := g.client.Issues.CreateComment(ctx, g.repo.Owner, g.repo.Name, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err = gh.Wrap("comment", resp, err); err != nil {
		return "", err
	}
	return c.GetHTMLURL(), nil
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
