package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

// GitHubNotifier posts a comment to an issue via the GitHub API. issueRef
// is "owner/repo#number", the same form experiment operators write by hand
// when filing a regression.
type GitHubNotifier struct {
	client *github.Client
}

// NewGitHubNotifier builds a Notifier authenticated with a static
// personal-access or installation token.
func NewGitHubNotifier(token string) *GitHubNotifier {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	return &GitHubNotifier{client: github.NewClient(httpClient)}
}

// Notify posts message as a comment on issueRef.
func (n *GitHubNotifier) Notify(ctx context.Context, issueRef, message string) error {
	owner, repo, number, err := parseIssueRef(issueRef)
	if err != nil {
		return err
	}

	_, _, err = n.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: &message,
	})
	if err != nil {
		return fmt.Errorf("notify: post comment to %s: %w", issueRef, err)
	}
	return nil
}

func parseIssueRef(ref string) (owner, repo string, number int, err error) {
	slash := strings.Index(ref, "/")
	hash := strings.LastIndex(ref, "#")
	if slash < 0 || hash < 0 || hash < slash {
		return "", "", 0, fmt.Errorf("notify: malformed issue ref %q, want owner/repo#number", ref)
	}
	owner = ref[:slash]
	repo = ref[slash+1 : hash]
	number, err = strconv.Atoi(ref[hash+1:])
	if err != nil {
		return "", "", 0, fmt.Errorf("notify: malformed issue number in %q: %w", ref, err)
	}
	return owner, repo, number, nil
}
