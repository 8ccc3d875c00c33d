package redmine

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// API is the source surface used by the importer. *Client implements it.
type API interface {
	Lister
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Endpoint(path string) string
}

// IssueIncludes are the associations fetched with every issue detail.
const IssueIncludes = "relations,watchers,attachments,journals"

// Projects lists every project visible to the API key.
func Projects(ctx context.Context, api Lister) ([]Project, error) {
	return ListAll[Project](ctx, api, "/projects.json", "projects", nil)
}

// Statuses lists issue statuses.
func Statuses(ctx context.Context, api Lister) ([]Named, error) {
	return ListAll[Named](ctx, api, "/issue_statuses.json", "issue_statuses", nil)
}

// Trackers lists trackers.
func Trackers(ctx context.Context, api Lister) ([]Named, error) {
	return ListAll[Named](ctx, api, "/trackers.json", "trackers", nil)
}

// Priorities lists issue priorities.
func Priorities(ctx context.Context, api Lister) ([]Named, error) {
	return ListAll[Named](ctx, api, "/enumerations/issue_priorities.json", "issue_priorities", nil)
}

// CustomFields lists custom field definitions (admin only).
func CustomFields(ctx context.Context, api Lister) ([]CustomField, error) {
	return ListAll[CustomField](ctx, api, "/custom_fields.json", "custom_fields", nil)
}

// Users lists accounts (admin only).
func Users(ctx context.Context, api Lister) ([]User, error) {
	return ListAll[User](ctx, api, "/users.json", "users", nil)
}

// Versions lists the versions of a project.
func Versions(ctx context.Context, api Lister, project string) ([]Version, error) {
	return ListAll[Version](ctx, api, projectPath(project, "versions.json"), "versions", nil)
}

// Categories lists the issue categories of a project.
func Categories(ctx context.Context, api Lister, project string) ([]Named, error) {
	return ListAll[Named](ctx, api, projectPath(project, "issue_categories.json"), "issue_categories", nil)
}

// IssueQuery builds the query for a project's issues, including closed ones
// and optionally restricted to a comma separated id list.
func IssueQuery(project, issueIDs string) url.Values {
	q := url.Values{
		"project_id": {project},
		"status_id":  {"*"},
		"sort":       {"id"},
	}
	if issueIDs != "" {
		q.Set("issue_id", issueIDs)
	}
	return q
}

// IssueDetail fetches a single issue with relations, watchers, attachments
// and journals.
func IssueDetail(ctx context.Context, api API, id int64) (*Issue, error) {
	var resp struct {
		Issue *Issue `json:"issue"`
	}
	path := fmt.Sprintf("/issues/%d.json", id)
	if err := api.Get(ctx, path, url.Values{"include": {IssueIncludes}}, &resp); err != nil {
		return nil, fmt.Errorf("get issue %d: %w", id, err)
	}
	if resp.Issue == nil {
		return nil, &RemoteFetchError{Endpoint: path, Reason: `response has no "issue" field`}
	}
	return resp.Issue, nil
}

// GetUser fetches a single account.
func GetUser(ctx context.Context, api API, id int64) (*User, error) {
	var resp struct {
		User *User `json:"user"`
	}
	path := fmt.Sprintf("/users/%d.json", id)
	if err := api.Get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, &RemoteFetchError{Endpoint: path, Reason: `response has no "user" field`}
	}
	return resp.User, nil
}

// GetWikiPage fetches a project wiki page.
func GetWikiPage(ctx context.Context, api API, project, page string) (*WikiPage, error) {
	var resp struct {
		WikiPage *WikiPage `json:"wiki_page"`
	}
	path := projectPath(project, "wiki/"+url.PathEscape(page)+".json")
	if err := api.Get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.WikiPage == nil {
		return nil, &RemoteFetchError{Endpoint: path, Reason: `response has no "wiki_page" field`}
	}
	return resp.WikiPage, nil
}

// WikiPageName derives the wiki page id Redmine generates for a version name.
func WikiPageName(version string) string {
	return strings.ReplaceAll(strings.ReplaceAll(version, " ", "_"), ".", "")
}

// IssueURL is the browser URL of an issue.
func IssueURL(api API, id int64) string {
	return api.Endpoint(fmt.Sprintf("/issues/%d", id))
}

// IssueJSONURL is the API URL of an issue with all includes.
func IssueJSONURL(api API, id int64) string {
	return api.Endpoint(fmt.Sprintf("/issues/%d.json?include=%s", id, IssueIncludes))
}

func projectPath(project, rest string) string {
	return "/projects/" + url.PathEscape(project) + "/" + rest
}
