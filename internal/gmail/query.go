package gmail

import (
	"strings"
	"time"
)

const queryDateLayout = "2006/01/02"

// SearchCriteria describes a message search. Zero values contribute no clause.
type SearchCriteria struct {
	Sender        string
	Subject       string
	After         time.Time
	Before        time.Time
	Labels        []string
	HasAttachment bool
	// IncludeSpam: nil leaves the provider default, false adds -in:spam,
	// true widens the search to in:anywhere.
	IncludeSpam *bool
	MaxResults  int
	Raw         string
}

// Within returns a copy whose After is now minus days, unless After is already
// set or days is not positive.
func (c SearchCriteria) Within(now time.Time, days int) SearchCriteria {
	if days <= 0 || !c.After.IsZero() {
		return c
	}
	c.After = now.AddDate(0, 0, -days)
	return c
}

// Validate reports malformed criteria before any network call.
func (c SearchCriteria) Validate() error {
	if c.MaxResults < 0 {
		return Errorf(ErrQuery, "validate criteria", "max results must not be negative, got %d", c.MaxResults)
	}
	if !c.After.IsZero() && !c.Before.IsZero() && c.After.After(c.Before) {
		return Errorf(ErrQuery, "validate criteria", "after %s is later than before %s",
			c.After.Format(queryDateLayout), c.Before.Format(queryDateLayout))
	}
	return nil
}

// BuildQuery renders criteria as a Gmail search string. Clause order is fixed:
// sender, after, before, subject, attachment, spam, labels, raw fragment.
func BuildQuery(c SearchCriteria) string {
	var parts []string
	if s := strings.TrimSpace(c.Sender); s != "" {
		parts = append(parts, "from:"+s)
	}
	if !c.After.IsZero() {
		parts = append(parts, "after:"+c.After.Format(queryDateLayout))
	}
	if !c.Before.IsZero() {
		parts = append(parts, "before:"+c.Before.Format(queryDateLayout))
	}
	if s := strings.TrimSpace(c.Subject); s != "" {
		parts = append(parts, "subject:"+quoteTerm(s))
	}
	if c.HasAttachment {
		parts = append(parts, "has:attachment")
	}
	if c.IncludeSpam != nil {
		if *c.IncludeSpam {
			parts = append(parts, "in:anywhere")
		} else {
			parts = append(parts, "-in:spam")
		}
	}
	for _, l := range c.Labels {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, "label:"+quoteTerm(l))
		}
	}
	if r := strings.TrimSpace(c.Raw); r != "" {
		parts = append(parts, r)
	}
	return strings.Join(parts, " ")
}

func quoteTerm(s string) string {
	if !strings.ContainsAny(s, " \t") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
