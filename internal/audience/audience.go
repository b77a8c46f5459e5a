// Package audience turns a dispatch target into a lazy, chunked sequence of
// recipient emails.
package audience

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// DefaultChunkSize is how many contacts are read per window.
const DefaultChunkSize = 1000

// Status explains why an audience is empty.
type Status int

const (
	Ready Status = iota
	NoContacts
	NoGroups
	NoGroupContacts
)

// Message is the user-facing explanation of an empty audience.
func (s Status) Message() string {
	switch s {
	case NoContacts:
		return "No active contacts found"
	case NoGroups:
		return "No groups found"
	case NoGroupContacts:
		return "No contacts in groups"
	default:
		return ""
	}
}

// Store reads contacts and groups. Only active contacts with a non-empty
// email are ever counted or returned.
type Store interface {
	// CountActive counts the user's distinct active emails.
	CountActive(ctx context.Context, userID string) (int, error)
	// ActiveEmails returns one window of distinct active emails in a stable order.
	ActiveEmails(ctx context.Context, userID string, offset, limit int) ([]string, error)
	// FindGroups returns the user's groups that have contacts, restricted to
	// groupIDs when it is non-empty.
	FindGroups(ctx context.Context, userID string, groupIDs []string) ([]domain.Group, error)
	// CountActiveByIDs counts the active contacts among ids.
	CountActiveByIDs(ctx context.Context, userID string, ids []string) (int, error)
	// ActiveEmailsByIDs returns the emails of the active contacts among ids.
	ActiveEmailsByIDs(ctx context.Context, userID string, ids []string) ([]string, error)
}

// Resolver builds audiences.
type Resolver struct {
	store     Store
	chunkSize int
	validate  *validator.Validate
}

// NewResolver creates a Resolver. chunkSize <= 0 means DefaultChunkSize.
func NewResolver(store Store, chunkSize int) *Resolver {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Resolver{store: store, chunkSize: chunkSize, validate: validator.New()}
}

// Resolve sizes the audience and returns a cursor positioned at the start.
// An empty audience is not an error; its Status says why it is empty.
func (r *Resolver) Resolve(ctx context.Context, target domain.DispatchTarget) (*Audience, error) {
	a := &Audience{
		store:     r.store,
		userID:    target.UserID,
		chunkSize: r.chunkSize,
		validate:  r.validate,
	}

	switch spec := target.Audience.(type) {
	case domain.AllContacts:
		total, err := r.store.CountActive(ctx, target.UserID)
		if err != nil {
			return nil, fmt.Errorf("count active contacts: %w", err)
		}
		a.total = total
		if total == 0 {
			a.status = NoContacts
		}
		return a, nil

	case domain.Groups:
		groups, err := r.store.FindGroups(ctx, target.UserID, spec.GroupIDs)
		if err != nil {
			return nil, fmt.Errorf("find groups: %w", err)
		}
		groups = filterGroups(groups, spec.GroupIDs)
		if len(groups) == 0 {
			a.status = NoGroups
			return a, nil
		}

		a.byIDs = true
		a.ids = unionContactIDs(groups)
		if len(a.ids) == 0 {
			a.status = NoGroupContacts
			return a, nil
		}

		total, err := r.store.CountActiveByIDs(ctx, target.UserID, a.ids)
		if err != nil {
			return nil, fmt.Errorf("count group contacts: %w", err)
		}
		a.total = total
		if total == 0 {
			a.status = NoGroupContacts
			return a, nil
		}
		a.seen = make(map[string]struct{})
		return a, nil

	default:
		return nil, fmt.Errorf("unsupported audience %T", target.Audience)
	}
}

// filterGroups keeps groups that have contacts and, when ids is non-empty,
// whose id is listed. A filter that matches nothing yields nothing.
func filterGroups(groups []domain.Group, ids []string) []domain.Group {
	var want map[string]bool
	if len(ids) > 0 {
		want = make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}
	out := groups[:0:0]
	for _, g := range groups {
		if len(g.ContactIDs) == 0 {
			continue
		}
		if want != nil && !want[g.ID] {
			continue
		}
		out = append(out, g)
	}
	return out
}

func unionContactIDs(groups []domain.Group) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, g := range groups {
		for _, id := range g.ContactIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// Audience is a restartable cursor over recipient emails. It is not safe for
// concurrent use.
type Audience struct {
	store     Store
	userID    string
	chunkSize int
	validate  *validator.Validate

	total  int
	status Status

	byIDs bool
	ids   []string
	seen  map[string]struct{}

	offset int
}

// Total is the audience size known at resolve time.
func (a *Audience) Total() int { return a.total }

// Status reports whether the audience has recipients.
func (a *Audience) Status() Status { return a.status }

// Empty reports whether there is nothing to send.
func (a *Audience) Empty() bool { return a.status != Ready || a.total == 0 }

// Reset rewinds the cursor to the first window.
func (a *Audience) Reset() {
	a.offset = 0
	if a.seen != nil {
		a.seen = make(map[string]struct{})
	}
}

// Next returns the next window of valid emails. ok is false once the
// audience is exhausted. A window may be empty when every email in it was
// filtered out.
func (a *Audience) Next(ctx context.Context) (emails []string, ok bool, err error) {
	if a.Empty() {
		return nil, false, nil
	}

	var raw []string
	if a.byIDs {
		if a.offset >= len(a.ids) {
			return nil, false, nil
		}
		end := a.offset + a.chunkSize
		if end > len(a.ids) {
			end = len(a.ids)
		}
		raw, err = a.store.ActiveEmailsByIDs(ctx, a.userID, a.ids[a.offset:end])
		if err != nil {
			return nil, false, fmt.Errorf("read group contacts at %d: %w", a.offset, err)
		}
		a.offset = end
	} else {
		if a.offset >= a.total {
			return nil, false, nil
		}
		raw, err = a.store.ActiveEmails(ctx, a.userID, a.offset, a.chunkSize)
		if err != nil {
			return nil, false, fmt.Errorf("read contacts at %d: %w", a.offset, err)
		}
		a.offset += a.chunkSize
	}

	return a.filter(raw), true, nil
}

func (a *Audience) filter(raw []string) []string {
	out := make([]string, 0, len(raw))
	local := make(map[string]struct{}, len(raw))
	for _, email := range raw {
		if err := a.validate.Var(email, "required,email"); err != nil {
			logger.Debug("dropping invalid recipient", "email", email)
			continue
		}
		if _, dup := local[email]; dup {
			continue
		}
		local[email] = struct{}{}
		if a.seen != nil {
			if _, dup := a.seen[email]; dup {
				continue
			}
			a.seen[email] = struct{}{}
		}
		out = append(out, email)
	}
	return out
}
