// Package actionbus routes actions through risk-tiered approval to an
// executor. Green actions run immediately, yellow actions wait for a
// confirmation, red actions wait for explicit authority, and anything the
// bus cannot classify is denied without reaching the backend. Every action
// resolves exactly once.
package actionbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/runway"
	"github.com/swayz032/aspire-runway/pkg/telemetry"
)

const DefaultExecTimeout = 30 * time.Second

// Outcome is what an executor returns for a successful execution.
type Outcome struct {
	ReceiptID string
	Data      map[string]any
}

// Executor performs an authorized action against the backend. It is called
// at most once per action id.
type Executor interface {
	Execute(ctx context.Context, a Action) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, a Action) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, a Action) (Outcome, error) { return f(ctx, a) }

// Recorder persists resolved results.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// ResolvedLookup is implemented by recorders that can tell whether an id
// already has a recorded result. The bus consults it so that an id resolved
// before a restart is still refused.
type ResolvedLookup interface {
	Resolved(ctx context.Context, actionID string) (bool, error)
}

type entry struct {
	action Action
	ticket *Ticket
	runway *runway.Runway
	// announced is closed once the request event has been published, so a
	// decision made from inside a listener is never observed before it.
	announced chan struct{}
	// callerID is set when the id came from the caller rather than the generator.
	callerID bool
}

type resolver struct {
	tier  capabilities.Tier
	timer *time.Timer
}

// Bus owns in-flight actions until they resolve.
type Bus struct {
	executor    Executor
	registry    *capabilities.Registry
	taxonomy    *failures.Taxonomy
	recorder    Recorder
	emitter     *telemetry.Emitter
	machine     *runway.Machine
	logger      *slog.Logger
	clock       func() time.Time
	newID       func() string
	execTimeout time.Duration
	// authorityTTL bounds how long a yellow or red action waits for a decision.
	authorityTTL time.Duration

	pendingMu sync.Mutex
	pending   map[string]*entry
	// resolved holds caller-supplied ids that have already resolved.
	resolved map[string]struct{}

	resolverMu sync.Mutex
	resolvers  map[string]*resolver

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	inflight sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithRegistry sets the capability registry used to resolve tiers and run preflight.
func WithRegistry(r *capabilities.Registry) Option {
	return func(b *Bus) { b.registry = r }
}

// WithTaxonomy sets the failure taxonomy used for user-facing messages.
func WithTaxonomy(t *failures.Taxonomy) Option {
	return func(b *Bus) { b.taxonomy = t }
}

// WithRecorder sets the result ledger.
func WithRecorder(r Recorder) Option {
	return func(b *Bus) { b.recorder = r }
}

// WithTelemetry sets the telemetry emitter.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(b *Bus) { b.emitter = e }
}

// WithMachine sets the runway machine shared by every action.
func WithMachine(m *runway.Machine) Option {
	return func(b *Bus) { b.machine = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(b *Bus) { b.clock = clock }
}

// WithIDGenerator overrides action id generation.
func WithIDGenerator(f func() string) Option {
	return func(b *Bus) { b.newID = f }
}

// WithExecTimeout bounds each executor call.
func WithExecTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.execTimeout = d
		}
	}
}

// WithAuthorityTTL expires yellow and red actions that receive no decision
// within d. Zero disables expiry.
func WithAuthorityTTL(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.authorityTTL = d
		}
	}
}

// New creates a bus that executes through exec.
func New(exec Executor, opts ...Option) *Bus {
	b := &Bus{
		executor:    exec,
		registry:    capabilities.Default(),
		taxonomy:    failures.Default(),
		logger:      slog.Default().With("component", "actionbus"),
		clock:       time.Now,
		newID:       uuid.NewString,
		execTimeout: DefaultExecTimeout,
		pending:     make(map[string]*entry),
		resolved:    make(map[string]struct{}),
		resolvers:   make(map[string]*resolver),
		listeners:   make(map[int]Listener),
	}
	for _, o := range opts {
		o(b)
	}
	if b.machine == nil {
		b.machine = runway.NewMachine(runway.ObserverFunc(b.observeTransition)).WithLogger(b.logger)
	}
	return b
}

func (b *Bus) observeTransition(r runway.Record) {
	b.emitter.Emit(context.Background(), "runway_transition", map[string]any{
		"from":  string(r.From),
		"to":    string(r.To),
		"event": string(r.Event),
	})
}

// Submit takes ownership of a copy of a and routes it by tier. The returned
// ticket resolves when the action succeeds, fails or is denied.
func (b *Bus) Submit(ctx context.Context, a Action) *Ticket {
	a = a.clone()
	callerID := a.ID != ""
	if !callerID {
		a.ID = b.newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = b.clock().UTC()
	}
	tier, code, reason := b.resolveTier(a)
	switch {
	case code == "":
		a.Tier = tier
	case !a.Tier.Valid():
		a.Tier = ""
	}

	e := &entry{
		action:    a,
		ticket:    newTicket(a.ID),
		runway:    runway.New(a.ID, b.machine),
		announced: make(chan struct{}),
		callerID:  callerID,
	}

	if callerID && b.recordedBefore(ctx, a.ID) {
		return b.rejectDuplicate(ctx, a, "already recorded")
	}
	b.pendingMu.Lock()
	if _, dup := b.pending[a.ID]; dup {
		b.pendingMu.Unlock()
		return b.rejectDuplicate(ctx, a, "pending")
	}
	if _, done := b.resolved[a.ID]; done {
		b.pendingMu.Unlock()
		return b.rejectDuplicate(ctx, a, "resolved")
	}
	b.pending[a.ID] = e
	b.pendingMu.Unlock()

	b.publish(EventSubmitted, a, nil)
	e.runway.Fire(runway.EventStartIntent)

	if code == "" && a.Capability != "" {
		if err := b.registry.Preflight(a.Capability, a.Verb, a.Payload); err != nil {
			code, reason = failures.PreflightFailed, err.Error()
		}
	}
	if code != "" {
		b.logger.InfoContext(ctx, "action denied", "action_id", a.ID, "type", a.TaskType(), "failure_code", code, "reason", reason)
		close(e.announced)
		b.finish(ctx, e, b.failure(a, StatusDenied, code, ""), runway.EventCancel)
		return e.ticket
	}

	e.runway.FireAll(
		runway.EventPreflightOK,
		runway.EventDraftComplete,
		runway.EventSubmitAuthority,
		runway.EventAuthorityReceived,
	)

	if tier == capabilities.TierGreen {
		close(e.announced)
		e.runway.Fire(runway.EventApprove)
		b.launch(ctx, e)
		return e.ticket
	}

	b.resolverMu.Lock()
	b.resolvers[a.ID] = &resolver{tier: tier}
	b.resolverMu.Unlock()

	kind := EventConfirmationRequested
	if tier.RequiresAuthority() {
		kind = EventAuthorityRequested
	}
	b.publish(kind, a, nil)
	close(e.announced)

	if b.authorityTTL > 0 {
		b.resolverMu.Lock()
		if r, ok := b.resolvers[a.ID]; ok {
			id := a.ID
			r.timer = time.AfterFunc(b.authorityTTL, func() { b.expire(context.Background(), id) })
		}
		b.resolverMu.Unlock()
	}
	return e.ticket
}

// rejectDuplicate answers a reused id with a denied ticket. Nothing is
// executed, published or recorded for it.
func (b *Bus) rejectDuplicate(ctx context.Context, a Action, reason string) *Ticket {
	b.logger.WarnContext(ctx, "duplicate action id rejected", "action_id", a.ID, "reason", reason)
	t := newTicket(a.ID)
	t.resolve(b.failure(a, StatusDenied, failures.PolicyDenied, runway.StateIdle))
	return t
}

// recordedBefore asks the ledger whether id already resolved. A ledger that
// cannot answer counts as a yes.
func (b *Bus) recordedBefore(ctx context.Context, id string) bool {
	lookup, ok := b.recorder.(ResolvedLookup)
	if !ok {
		return false
	}
	found, err := lookup.Resolved(ctx, id)
	if err != nil {
		b.logger.ErrorContext(ctx, "ledger lookup failed, refusing action id",
			"action_id", id,
			"failure_code", failures.LedgerWriteFailed,
			"error", err,
		)
		return true
	}
	return found
}

// resolveTier returns the effective tier, or a failure code and reason when
// the action must be denied. A declared tier can raise but never lower the
// tier the registry assigns to the verb.
func (b *Bus) resolveTier(a Action) (capabilities.Tier, string, string) {
	declared := a.Tier
	if declared != "" && !declared.Valid() {
		return "", failures.UnknownTier, fmt.Sprintf("unrecognized tier %q", string(declared))
	}
	if a.Capability == "" && a.Verb == "" {
		if declared == "" {
			return "", failures.UnknownTier, "no tier and no capability"
		}
		return declared, "", ""
	}
	v, ok := b.registry.Verb(a.Capability, a.Verb)
	if !ok {
		return "", failures.UnknownCapability, fmt.Sprintf("%q/%q not declared", a.Capability, a.Verb)
	}
	if declared.Rank() > v.Tier.Rank() {
		return declared, "", ""
	}
	return v.Tier, "", ""
}

// Approve authorizes a waiting action and starts its execution. It reports
// false without side effects when id is not waiting or tier does not match
// the action's tier.
func (b *Bus) Approve(ctx context.Context, id string, tier capabilities.Tier) bool {
	b.resolverMu.Lock()
	r, ok := b.resolvers[id]
	if !ok {
		b.resolverMu.Unlock()
		return false
	}
	if r.tier != tier {
		b.resolverMu.Unlock()
		b.logger.WarnContext(ctx, "approval tier mismatch", "action_id", id, "want", r.tier, "got", tier)
		return false
	}
	delete(b.resolvers, id)
	b.resolverMu.Unlock()
	r.stop()

	e, ok := b.lookup(id)
	if !ok {
		return false
	}
	e.runway.Fire(runway.EventApprove)
	b.launch(ctx, e)
	return true
}

// Deny rejects a waiting action. Denial is accepted at any tier.
func (b *Bus) Deny(ctx context.Context, id string, tier capabilities.Tier) bool {
	b.resolverMu.Lock()
	r, ok := b.resolvers[id]
	if !ok {
		b.resolverMu.Unlock()
		return false
	}
	delete(b.resolvers, id)
	b.resolverMu.Unlock()
	r.stop()

	e, ok := b.lookup(id)
	if !ok {
		return false
	}
	if r.tier != tier {
		b.logger.DebugContext(ctx, "deny with different tier", "action_id", id, "want", r.tier, "got", tier)
	}
	deny := func(ctx context.Context) {
		b.finish(ctx, e, b.failure(e.action, StatusDenied, failures.PolicyDenied, ""), runway.EventDeny)
	}
	select {
	case <-e.announced:
		deny(ctx)
	default:
		// Called from a listener while the request is still being announced.
		ctx = context.WithoutCancel(ctx)
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			<-e.announced
			deny(ctx)
		}()
	}
	return true
}

func (r *resolver) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
}

// expire resolves a waiting action as denied with AuthorityExpired. It
// reports false when the action was decided first.
func (b *Bus) expire(ctx context.Context, id string) bool {
	b.resolverMu.Lock()
	r, ok := b.resolvers[id]
	if !ok {
		b.resolverMu.Unlock()
		return false
	}
	delete(b.resolvers, id)
	b.resolverMu.Unlock()
	r.stop()

	e, ok := b.lookup(id)
	if !ok {
		return false
	}
	<-e.announced
	b.logger.InfoContext(ctx, "authority window expired", "action_id", id, "tier", r.tier, "failure_code", failures.AuthorityExpired)
	b.finish(ctx, e, b.failure(e.action, StatusDenied, failures.AuthorityExpired, ""), runway.EventTimeout)
	return true
}

// ExpireWaiting resolves every action still waiting for a decision as
// expired and returns how many it resolved. Servers call it at shutdown so
// no ticket is left without a result.
func (b *Bus) ExpireWaiting(ctx context.Context) int {
	b.resolverMu.Lock()
	ids := make([]string, 0, len(b.resolvers))
	for id := range b.resolvers {
		ids = append(ids, id)
	}
	b.resolverMu.Unlock()
	slices.Sort(ids)

	n := 0
	for _, id := range ids {
		if b.expire(ctx, id) {
			n++
		}
	}
	return n
}

// Pending returns copies of unresolved actions, oldest first.
func (b *Bus) Pending() []Action {
	b.pendingMu.Lock()
	out := make([]Action, 0, len(b.pending))
	for _, e := range b.pending {
		out = append(out, e.action.clone())
	}
	b.pendingMu.Unlock()

	slices.SortFunc(out, func(x, y Action) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		if x.ID < y.ID {
			return -1
		}
		if x.ID > y.ID {
			return 1
		}
		return 0
	})
	return out
}

// Get returns a copy of a pending action.
func (b *Bus) Get(id string) (Action, bool) {
	e, ok := b.lookup(id)
	if !ok {
		return Action{}, false
	}
	return e.action.clone(), true
}

// Ticket returns the ticket of a pending action.
func (b *Bus) Ticket(id string) (*Ticket, bool) {
	e, ok := b.lookup(id)
	if !ok {
		return nil, false
	}
	return e.ticket, true
}

// Stage returns the runway position of a pending action.
func (b *Bus) Stage(id string) (runway.State, bool) {
	e, ok := b.lookup(id)
	if !ok {
		return "", false
	}
	return e.runway.State(), true
}

// Drain waits for in-flight executions to finish or ctx to end.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) lookup(id string) (*entry, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	e, ok := b.pending[id]
	return e, ok
}

// launch runs the executor in the background, detached from the caller's
// cancellation.
func (b *Bus) launch(ctx context.Context, e *entry) {
	ctx = context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.execute(ctx, e)
	}()
}

func (b *Bus) execute(parent context.Context, e *entry) {
	<-e.announced
	e.runway.Fire(runway.EventExecute)
	b.publish(EventExecuting, e.action, nil)

	ctx, cancel := context.WithTimeout(parent, b.execTimeout)
	defer cancel()

	out, err := b.call(ctx, e.action)
	if err != nil {
		code := b.classify(ctx, err)
		fe := b.taxonomy.Wrap(code, err)
		b.logger.ErrorContext(parent, "action execution failed",
			"action_id", e.action.ID,
			"type", e.action.TaskType(),
			"tier", e.action.Tier,
			"failure_code", fe.Code.Code,
			"diagnostic", fe.Diagnostic(),
		)
		event := runway.EventFail
		if fe.Code.Code == failures.ExecutionTimeout {
			event = runway.EventTimeout
		}
		// The exec deadline may have passed; resolution runs on the parent.
		b.finish(parent, e, b.failure(e.action, StatusFailed, fe.Code.Code, ""), event)
		return
	}

	e.runway.Fire(runway.EventExecutionComplete)
	res := Result{
		ActionID:  e.action.ID,
		Status:    StatusSucceeded,
		ReceiptID: out.ReceiptID,
		Data:      cloneMap(out.Data),
	}
	b.finish(parent, e, res, "")
}

type callResult struct {
	out Outcome
	err error
}

// call invokes the executor and gives up when ctx ends, even if the executor
// ignores cancellation.
func (b *Bus) call(ctx context.Context, a Action) (Outcome, error) {
	if b.executor == nil {
		return Outcome{}, b.taxonomy.Wrap(failures.InternalInvariant, errors.New("no executor configured"))
	}
	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- callResult{err: b.taxonomy.Wrap(failures.InternalInvariant, fmt.Errorf("executor panic: %v", p))}
			}
		}()
		out, err := b.executor.Execute(ctx, a.clone())
		ch <- callResult{out: out, err: err}
	}()

	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (b *Bus) classify(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return failures.ExecutionTimeout
	}
	if code, ok := failures.CodeOf(err); ok {
		return code
	}
	return failures.BackendUnavailable
}

// failure builds a failed or denied result carrying only the code's
// user-facing message.
func (b *Bus) failure(a Action, status Status, code string, stage runway.State) Result {
	fe := b.taxonomy.Wrap(code, nil)
	return Result{
		ActionID:    a.ID,
		Type:        a.TaskType(),
		Tier:        a.Tier,
		SuiteID:     a.SuiteID,
		OfficeID:    a.OfficeID,
		Status:      status,
		Error:       fe.Error(),
		FailureCode: fe.Code.Code,
		Stage:       stage,
		ResolvedAt:  b.clock().UTC(),
	}
}

// finish retires e, records the result and resolves the ticket last, so a
// returned Wait observes every side effect. Only the first call for an id
// has any effect.
func (b *Bus) finish(ctx context.Context, e *entry, res Result, event runway.Event) {
	// The ledger write must not fail because a caller or deadline ended.
	ctx = context.WithoutCancel(ctx)

	b.pendingMu.Lock()
	if cur, ok := b.pending[e.action.ID]; !ok || cur != e {
		b.pendingMu.Unlock()
		return
	}
	delete(b.pending, e.action.ID)
	if e.callerID {
		b.resolved[e.action.ID] = struct{}{}
	}
	b.pendingMu.Unlock()

	b.resolverMu.Lock()
	delete(b.resolvers, e.action.ID)
	b.resolverMu.Unlock()

	if event != "" {
		e.runway.Fire(event)
	}
	res.ActionID = e.action.ID
	res.Type = e.action.TaskType()
	res.Tier = e.action.Tier
	res.SuiteID = e.action.SuiteID
	res.OfficeID = e.action.OfficeID
	res.Stage = e.runway.State()
	res.ResolvedAt = b.clock().UTC()

	if b.recorder != nil {
		if err := b.recorder.Record(ctx, res.clone()); err != nil {
			b.logger.ErrorContext(ctx, "result ledger write failed",
				"action_id", res.ActionID,
				"failure_code", failures.LedgerWriteFailed,
				"error", err,
			)
		}
	}

	data := map[string]any{
		"action_type": res.Type,
		"tier":        string(res.Tier),
		"status":      string(res.Status),
		"stage":       string(res.Stage),
	}
	if res.FailureCode != "" {
		data["failure_code"] = res.FailureCode
	}
	b.emitter.Emit(ctx, "action_"+string(res.Status), data)

	kind := EventSucceeded
	switch res.Status {
	case StatusFailed:
		kind = EventFailed
	case StatusDenied:
		kind = EventDenied
	}
	b.publish(kind, e.action, &res)

	e.ticket.resolve(res)
}
