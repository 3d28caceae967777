package resolver

import (
	"context"
	"errors"

	"github.com/lvcoi/freeytzone/internal/video"
	"github.com/sirupsen/logrus"
)

// Resolver turns a user-supplied URL into normalized Metadata using a
// primary backend and at most one fallback.
type Resolver struct {
	primary  Backend
	fallback Backend
	log      logrus.FieldLogger
}

// NewResolver builds a Resolver. fallback may be nil.
func NewResolver(primary, fallback Backend, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if fallback != nil && primary != nil && fallback.Name() == primary.Name() {
		fallback = nil
	}
	return &Resolver{primary: primary, fallback: fallback, log: log}
}

// Backends returns the configured backends in the order they are tried.
func (r *Resolver) Backends() []Backend {
	out := []Backend{r.primary}
	if r.fallback != nil {
		out = append(out, r.fallback)
	}
	return out
}

// Resolve validates rawURL and fetches its metadata. Content-level failures
// from the primary backend are returned as is; only environmental failures
// move on to the fallback.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (video.Metadata, error) {
	ref, err := video.ParseReference(rawURL)
	if err != nil {
		return video.Metadata{}, err
	}
	if r.primary == nil {
		return video.Metadata{}, video.Unavailable("", errors.New("no resolver backend configured"))
	}

	meta, err := r.resolveWith(ctx, r.primary, ref)
	if err == nil {
		return meta, nil
	}
	if r.fallback == nil || !video.IsEnvironmental(err) || ctx.Err() != nil {
		return video.Metadata{}, err
	}

	r.log.WithFields(logrus.Fields{
		"video_id": ref.ID,
		"primary":  r.primary.Name(),
		"fallback": r.fallback.Name(),
		"error":    err.Error(),
	}).Warn("primary backend failed, trying fallback")

	meta, fbErr := r.resolveWith(ctx, r.fallback, ref)
	if fbErr != nil {
		return video.Metadata{}, fbErr
	}
	return meta, nil
}

func (r *Resolver) resolveWith(ctx context.Context, backend Backend, ref video.Reference) (video.Metadata, error) {
	raw, err := backend.Resolve(ctx, ref)
	if err != nil {
		r.logFailure(backend, ref, err)
		return video.Metadata{}, err
	}
	meta, err := video.Normalize(ref, backend.Name(), raw)
	if err != nil {
		r.logFailure(backend, ref, err)
		return video.Metadata{}, err
	}
	return meta, nil
}

func (r *Resolver) logFailure(backend Backend, ref video.Reference, err error) {
	fields := logrus.Fields{
		"backend":  backend.Name(),
		"video_id": ref.ID,
		"kind":     video.KindOf(err),
		"category": video.CategoryOf(err),
	}
	var verr *video.Error
	if errors.As(err, &verr) && verr.Detail != "" {
		fields["detail"] = verr.Detail
	}
	r.log.WithFields(fields).WithError(err).Error("metadata resolution failed")
}

// StatusUnavailable prefixes Status entries for backends whose check failed.
const StatusUnavailable = "unavailable: "

// Status reports each backend's Checker result, keyed by backend name.
func (r *Resolver) Status(ctx context.Context) map[string]string {
	status := make(map[string]string)
	for _, b := range r.Backends() {
		if b == nil {
			continue
		}
		checker, ok := b.(Checker)
		if !ok {
			status[b.Name()] = "no status check available"
			continue
		}
		msg, err := checker.Check(ctx)
		if err != nil {
			status[b.Name()] = StatusUnavailable + err.Error()
			continue
		}
		status[b.Name()] = msg
	}
	return status
}
