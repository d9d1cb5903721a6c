// Package gitsource keeps a local checkout of a git-hosted deck up to date.
package gitsource

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does.
func Sync(repoURL, localPath string, progress io.Writer) error {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("Cloning deck repository", "url", repoURL, "path", localPath)
		_, err := git.PlainClone(localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}
	case err == nil:
		slog.Info("Pulling deck repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.Pull(&git.PullOptions{
			RemoteName: "origin",
			Progress:   progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}

// IsURL reports whether location looks like a git remote rather than a local
// path.
func IsURL(location string) bool {
	return strings.HasSuffix(location, ".git") ||
		strings.HasPrefix(location, "git@") ||
		strings.HasPrefix(location, "https://") ||
		strings.HasPrefix(location, "http://")
}

// ErrInvalidURL is returned for remotes that cannot be mapped to a checkout
// directory below the repos directory.
var ErrInvalidURL = errors.New("invalid git URL")

// LocalPath maps a remote URL to a checkout directory under baseDir, e.g.
// https://github.com/a/b.git -> baseDir/github.com/a/b. scp-style
// git@host:a/b.git remotes are accepted too. The result is always strictly
// inside baseDir.
func LocalPath(baseDir, repoURL string) (string, error) {
	host, repoPath, ok := splitRemote(repoURL)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, repoURL)
	}
	p := filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git"))

	rel, err := filepath.Rel(baseDir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s leaves %s", ErrInvalidURL, repoURL, baseDir)
	}
	return p, nil
}

func splitRemote(repoURL string) (host, repoPath string, ok bool) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		return parsed.Host, parsed.Path, parsed.Host != ""
	}

	userHost, repoPath, found := strings.Cut(repoURL, ":")
	if !found || strings.Contains(repoPath, ":") {
		return "", "", false
	}
	_, host, found = strings.Cut(userHost, "@")
	return host, repoPath, found && host != ""
}
