package surface

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/jira"
)

const (
	msgIssueNotFound = "issue not found"
	msgLoadFailed    = "error loading issue details"
)

// ViewStatus is the display state of a view surface.
type ViewStatus int

const (
	ViewLoading ViewStatus = iota
	ViewError
	ViewEmpty
	ViewSuccess
)

func (s ViewStatus) String() string {
	switch s {
	case ViewLoading:
		return "loading"
	case ViewError:
		return "error"
	case ViewEmpty:
		return "empty"
	case ViewSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// IssueFetcher fetches one issue. Implemented by *jira.Client.
type IssueFetcher interface {
	GetIssue(ctx context.Context, idOrKey string) (jira.Issue, error)
}

// IssueView is the rendered projection of the selected issue.
type IssueView struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	TypeName string `json:"typeName"`
	IconURL  string `json:"iconUrl,omitempty"`
	URL      string `json:"url"`
}

// ViewState is what a view surface renders.
type ViewState struct {
	Status  ViewStatus
	Heading string
	Value   string
	Issue   *IssueView
	Err     string
}

// ViewSurface renders the stored value read-only.
type ViewSurface struct {
	bridge   Bridge
	resolver fieldconfig.Resolver
	issues   IssueFetcher
	logger   *slog.Logger
}

func NewViewSurface(bridge Bridge, resolver fieldconfig.Resolver, issues IssueFetcher) *ViewSurface {
	return &ViewSurface{
		bridge:   bridge,
		resolver: resolver,
		issues:   issues,
		logger:   slog.Default(),
	}
}

// Load resolves the stored value into a terminal ViewState. The field's
// configuration is fetched only for its display label; failing to fetch it
// does not fail the view.
func (v *ViewSurface) Load(ctx context.Context) ViewState {
	st := ViewState{Status: ViewLoading, Heading: fieldconfig.DefaultDisplayName}

	ext, err := v.bridge.Context(ctx)
	if err != nil {
		v.logger.Error("loading view context", "error", err)
		st.Status = ViewError
		st.Err = msgLoadFailed
		return st
	}
	st.Value = ext.FieldValue
	st.Heading = v.heading(ctx, ext.FieldID)

	if ext.FieldValue == "" {
		st.Status = ViewEmpty
		return st
	}

	issue, err := v.issues.GetIssue(ctx, ext.FieldValue)
	if err != nil {
		v.logger.Warn("loading issue details", "value", ext.FieldValue, "error", err)
		st.Status = ViewError
		st.Err = msgLoadFailed
		if errors.Is(err, jira.ErrNotFound) {
			st.Err = msgIssueNotFound
		}
		return st
	}

	iv := &IssueView{
		Key:      issue.Key,
		Summary:  issue.Fields.Summary,
		TypeName: issue.TypeName(),
		URL:      IssueURL(ext.SiteURL, issue.Key),
	}
	if issue.Fields.IssueType != nil {
		iv.IconURL = issue.Fields.IssueType.IconURL
	}
	st.Status = ViewSuccess
	st.Issue = iv
	return st
}

func (v *ViewSurface) heading(ctx context.Context, fieldID string) string {
	if v.resolver == nil || fieldID == "" {
		return fieldconfig.DefaultDisplayName
	}
	res, err := v.resolver.GetFieldConfiguration(ctx, fieldID)
	switch {
	case err != nil:
		v.logger.Debug("fetching configuration for view", "field_id", fieldID, "error", err)
	case !res.Success:
		v.logger.Debug("fetching configuration for view", "field_id", fieldID, "error", res.Error)
	case res.Configuration != nil && strings.TrimSpace(res.Configuration.DisplayName) != "":
		return res.Configuration.DisplayName
	}
	return fieldconfig.DefaultDisplayName
}

// IssueURL returns the browse link of key on the given site.
func IssueURL(siteURL, key string) string {
	return strings.TrimRight(siteURL, "/") + "/browse/" + key
}
