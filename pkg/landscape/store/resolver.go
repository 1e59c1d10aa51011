package store

import (
	"context"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/sheet"
)

// Resolver maps definition names to ids within a project. It holds no
// state of its own and is safe for concurrent use.
type Resolver struct {
	store Store
}

var _ sheet.Lookup = (*Resolver)(nil)

// NewResolver returns a Resolver over s.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns nil for a blank name and the id of the single matching
// definition otherwise. Zero or several matches are integrity errors.
func (r *Resolver) Resolve(ctx context.Context, kind model.Kind, name string, projectID int64) (*int64, error) {
	if name == "" {
		return nil, nil
	}
	recs, err := r.store.FindDefinitions(ctx, projectID, kind, name)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 1:
		id := recs[0].ID
		return &id, nil
	case 0:
		return nil, exception.Newf(exception.KindIntegrity, "resolver",
			"no %s named %q in project %d", kind, name, projectID)
	default:
		return nil, exception.Newf(exception.KindIntegrity, "resolver",
			"%d definitions of %s named %q in project %d", len(recs), kind, name, projectID)
	}
}

// Name returns the name of definition id, which must be of kind.
func (r *Resolver) Name(ctx context.Context, kind model.Kind, id int64) (string, error) {
	rec, err := r.store.GetRecord(ctx, id)
	if err != nil {
		return "", exception.Newf(exception.KindIntegrity, "resolver", "%s %d does not exist", kind, id, err)
	}
	if rec.Kind != kind {
		return "", exception.Newf(exception.KindIntegrity, "resolver", "record %d is a %s, not a %s", id, rec.Kind, kind)
	}
	return rec.Name, nil
}
