package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Source lists and reads .java files under a directory of a GitHub repository.
type Source struct {
	client   *github.Client
	owner    string
	repo     string
	basePath string
}

// NewSource creates a source rooted at basePath. An empty basePath means the
// repository root.
func NewSource(client *Client, owner, repo, basePath string) *Source {
	return &Source{
		client:   client.Client,
		owner:    owner,
		repo:     repo,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Name identifies the repository.
func (s *Source) Name() string {
	return fmt.Sprintf("github.com/%s/%s", s.owner, s.repo)
}

// ListFiles returns repository paths of every .java file below basePath.
func (s *Source) ListFiles(ctx context.Context) ([]string, error) {
	return s.listRecursive(ctx, s.basePath)
}

func (s *Source) listRecursive(ctx context.Context, dir string) ([]string, error) {
	_, entries, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %q: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.GetName()
		if name == "" {
			continue
		}
		full := path.Join(dir, name)

		switch entry.GetType() {
		case "file":
			if strings.HasSuffix(name, ".java") {
				files = append(files, full)
			}
		case "dir":
			sub, err := s.listRecursive(ctx, full)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

// ReadFile returns the decoded content of a repository file.
func (s *Source) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	file, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", filePath, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", filePath)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", filePath, err)
	}
	return []byte(content), nil
}

// Revision returns the SHA of the latest commit touching basePath.
func (s *Source) Revision(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo, &github.CommitsListOptions{
		Path:        s.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %q", s.basePath)
	}
	return commits[0].GetSHA(), nil
}
