// Package variant creates groups of sibling product records and links every
// sibling to the full set of ids.
//
// A group is built in two phases. Phase one creates every sibling, possibly
// concurrently, each marked with the group id and linkState "pending". Phase
// two writes the complete id set into every sibling with a single atomic
// batch. A failure in either phase is reported as a *GroupError carrying the
// ids committed so far, and the pending marker keeps the group discoverable
// until it is reconciled.
package variant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/nimburion/storefront/pkg/observability/logger"
	"github.com/nimburion/storefront/pkg/observability/metrics"
	"github.com/nimburion/storefront/pkg/observability/tracing"
	"github.com/nimburion/storefront/pkg/repository/document"
)

// Fields written by the linker.
const (
	FieldVariants  = "variants"
	FieldGroupID   = "groupId"
	FieldLinkState = "linkState"
	FieldPosition  = "variantIndex"

	LinkStatePending = "pending"
	LinkStateLinked  = "linked"
)

// State is the progress of a group creation.
type State string

const (
	StatePending          State = "pending"
	StateCreating         State = "creating"
	StateLinking          State = "linking"
	StateComplete         State = "complete"
	StatePartiallyCreated State = "partially_created"
	StatePartiallyLinked  State = "partially_linked"
)

// Spec holds the fields that distinguish one sibling from the others.
type Spec struct {
	Fields document.Fields
}

// Group is a linked set of siblings. IDs follow the order of the specs.
type Group struct {
	ID    string
	IDs   []string
	State State
}

// GroupError reports a group left incomplete. IDs lists every sibling known
// to be committed, in spec order.
type GroupError struct {
	State   State
	GroupID string
	IDs     []string
	Err     error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("variant group %s %s (%d committed): %v", e.GroupID, e.State, len(e.IDs), e.Err)
}

func (e *GroupError) Unwrap() error {
	return e.Err
}

// ErrorKind maps the failure state onto the catalog error taxonomy.
func (e *GroupError) ErrorKind() document.Kind {
	if e.State == StatePartiallyCreated {
		return document.PartiallyCreated
	}
	return document.PartiallyLinked
}

// ErrorDetails exposes the group and its committed ids to API callers.
func (e *GroupError) ErrorDetails() map[string]any {
	return map[string]any{
		"groupId": e.GroupID,
		"ids":     append([]string(nil), e.IDs...),
		"state":   string(e.State),
	}
}

// Config controls the linker.
type Config struct {
	// Collection holding the siblings.
	Collection document.Collection
	// Concurrency bounds the parallel creations of phase one.
	Concurrency int
}

// DefaultConfig links products with up to eight concurrent creations.
func DefaultConfig() Config {
	return Config{Collection: document.Products, Concurrency: 8}
}

// Option configures a Linker.
type Option func(*Linker)

// WithGroupIDGenerator replaces the uuid based group id generator.
func WithGroupIDGenerator(fn func() string) Option {
	return func(l *Linker) {
		l.newGroupID = fn
	}
}

// Linker runs the two phase group creation.
type Linker struct {
	store      document.Store
	cfg        Config
	log        logger.Logger
	newGroupID func() string
}

// NewLinker creates a Linker.
//
// Cosa fa: crea i varianti in parallelo e li collega con un batch atomico.
// Cosa NON fa: non annulla le creazioni riuscite quando una fallisce.
// Esempio minimo: variant.NewLinker(store, variant.DefaultConfig(), log).CreateGroup(ctx, shared, specs)
func NewLinker(store document.Store, cfg Config, log logger.Logger, opts ...Option) *Linker {
	if cfg.Collection == "" {
		cfg.Collection = document.Products
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	l := &Linker{
		store:      store,
		cfg:        cfg,
		log:        logger.OrNop(log),
		newGroupID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateGroup creates one record per spec from shared merged with the spec
// fields, then links them. A group of one is linked to itself.
func (l *Linker) CreateGroup(ctx context.Context, shared document.Fields, specs []Spec) (Group, error) {
	if len(specs) == 0 {
		metrics.RecordVariantGroup("invalid_argument", 0)
		return Group{}, document.Errorf(document.InvalidArgument, "variant", "at least one variant is required")
	}
	groupID := l.newGroupID()
	log := l.log.WithContext(ctx).With("group_id", groupID, "variants", len(specs))

	ids, err := l.createAll(ctx, groupID, shared, specs)
	if err != nil {
		metrics.RecordVariantGroup(string(StatePartiallyCreated), len(specs))
		log.Error("variant creation incomplete", "committed", len(ids), "error", err)
		return Group{}, &GroupError{State: StatePartiallyCreated, GroupID: groupID, IDs: ids, Err: err}
	}

	group, err := l.link(ctx, groupID, ids)
	if err != nil {
		metrics.RecordVariantGroup(string(StatePartiallyLinked), len(specs))
		log.Error("variant linking failed", "error", err)
		return Group{}, err
	}
	metrics.RecordVariantGroup(string(StateComplete), len(specs))
	log.Info("variant group created")
	return group, nil
}

// createAll runs phase one. It waits for every creation, also after a
// failure, so the returned ids are exactly the committed ones. Every failed
// position is reported.
func (l *Linker) createAll(ctx context.Context, groupID string, shared document.Fields, specs []Spec) (_ []string, err error) {
	ctx, span := tracing.StartCatalogSpan(ctx, tracing.SpanOperationVariantCreate,
		tracing.WithCollection(string(l.cfg.Collection)),
		tracing.WithAttributes(attribute.String("catalog.group_id", groupID), attribute.Int("catalog.variants", len(specs))),
	)
	defer func() { tracing.End(span, err) }()

	slots := make([]string, len(specs))
	causes := make([]error, len(specs))
	var g errgroup.Group
	g.SetLimit(l.cfg.Concurrency)
	for i, spec := range specs {
		fields := siblingFields(shared, spec.Fields, groupID, i)
		g.Go(func() error {
			id, err := l.store.Create(ctx, l.cfg.Collection, fields)
			if err != nil {
				causes[i] = fmt.Errorf("create variant %d: %w", i, err)
				return nil
			}
			slots[i] = id
			return nil
		})
	}
	_ = g.Wait()

	var failures *multierror.Error
	for _, cause := range causes {
		if cause != nil {
			failures = multierror.Append(failures, cause)
		}
	}
	if failures != nil {
		failures.ErrorFormat = joinFailures
	}
	err = failures.ErrorOrNil()

	ids := make([]string, 0, len(slots))
	for _, id := range slots {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, err
}

func joinFailures(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func siblingFields(shared, own document.Fields, groupID string, position int) document.Fields {
	fields := shared.Clone()
	if fields == nil {
		fields = document.Fields{}
	}
	for k, v := range own.Clone() {
		fields[k] = v
	}
	delete(fields, FieldVariants)
	fields[FieldGroupID] = groupID
	fields[FieldLinkState] = LinkStatePending
	fields[FieldPosition] = int64(position)
	return fields
}

// link runs phase two: one batch writing the full id set into every sibling.
func (l *Linker) link(ctx context.Context, groupID string, ids []string) (_ Group, err error) {
	ctx, span := tracing.StartCatalogSpan(ctx, tracing.SpanOperationVariantLink,
		tracing.WithCollection(string(l.cfg.Collection)),
		tracing.WithAttributes(attribute.String("catalog.group_id", groupID), attribute.Int("catalog.variants", len(ids))),
	)
	defer func() { tracing.End(span, err) }()

	batch := document.NewBatch()
	for _, id := range ids {
		batch.Update(l.cfg.Collection, id, document.Fields{
			FieldVariants:  append([]string(nil), ids...),
			FieldLinkState: LinkStateLinked,
		})
	}
	if err := l.store.Commit(ctx, batch); err != nil {
		return Group{}, &GroupError{State: StatePartiallyLinked, GroupID: groupID, IDs: append([]string(nil), ids...), Err: err}
	}
	return Group{ID: groupID, IDs: ids, State: StateComplete}, nil
}

// Relink retries phase two for ids, which must all exist.
func (l *Linker) Relink(ctx context.Context, groupID string, ids []string) (Group, error) {
	if len(ids) == 0 {
		return Group{}, document.Errorf(document.InvalidArgument, "variant", "no ids to link")
	}
	group, err := l.link(ctx, groupID, append([]string(nil), ids...))
	if err != nil {
		l.log.WithContext(ctx).Warn("relink failed", "group_id", groupID, "error", err)
		return Group{}, err
	}
	l.log.WithContext(ctx).Info("variant group relinked", "group_id", groupID, "variants", len(ids))
	return group, nil
}

// PendingGroup is a group with at least one unlinked sibling.
type PendingGroup struct {
	GroupID string   `json:"groupId" yaml:"groupId"`
	IDs     []string `json:"ids" yaml:"ids"`
}

// Pending lists the groups that still have siblings marked pending, ordered
// by group id. Siblings created without a group id are ignored.
func (l *Linker) Pending(ctx context.Context) ([]PendingGroup, error) {
	records, err := l.store.Find(ctx, l.cfg.Collection, document.Query{
		Where: []document.Condition{document.Equal(FieldLinkState, LinkStatePending)},
	})
	if err != nil {
		return nil, err
	}
	byGroup := make(map[string][]document.Record)
	for _, r := range records {
		gid := r.Fields.String(FieldGroupID)
		if gid == "" {
			continue
		}
		byGroup[gid] = append(byGroup[gid], r)
	}
	out := make([]PendingGroup, 0, len(byGroup))
	for gid, members := range byGroup {
		out = append(out, PendingGroup{GroupID: gid, IDs: orderedIDs(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// Reconcile links every committed sibling of groupID, whatever its current
// link state, so a group left by an interrupted creation becomes consistent.
func (l *Linker) Reconcile(ctx context.Context, groupID string) (Group, error) {
	if groupID == "" {
		return Group{}, document.Errorf(document.InvalidArgument, "variant", "group id is required")
	}
	members, err := l.store.Find(ctx, l.cfg.Collection, document.Query{
		Where: []document.Condition{document.Equal(FieldGroupID, groupID)},
	})
	if err != nil {
		return Group{}, err
	}
	if len(members) == 0 {
		return Group{}, document.Errorf(document.NotFound, "variant", "group %q has no members", groupID)
	}
	return l.Relink(ctx, groupID, orderedIDs(members))
}

// orderedIDs sorts siblings by their creation position, then id.
func orderedIDs(members []document.Record) []string {
	sort.SliceStable(members, func(i, j int) bool {
		pi, pj := position(members[i]), position(members[j])
		if pi != pj {
			return pi < pj
		}
		return members[i].ID < members[j].ID
	})
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids
}

func position(r document.Record) int64 {
	switch v := r.Fields[FieldPosition].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// IDsOf returns the committed ids carried by err, if it is a *GroupError.
func IDsOf(err error) ([]string, bool) {
	var ge *GroupError
	if errors.As(err, &ge) {
		return ge.IDs, true
	}
	return nil, false
}
