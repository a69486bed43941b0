package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/attack-radar/pkg/errors"
)

// fakeStore is an in-memory Store with Redis stream semantics close enough
// for the publisher and consumer tests: server-assigned increasing ids,
// groups with a last-delivered cursor and per-consumer pending lists.
type fakeStore struct {
	mu       sync.Mutex
	sets     map[string]map[string]bool
	streams  map[string][]RawEntry
	groups   map[string]*fakeGroup
	seq      int
	calls    map[string]int
	failures map[string]*failure
	appended chan struct{}

	// beforeIsMember runs outside the lock before every membership check.
	beforeIsMember func()
	// isMemberErr, when set, can fail the check of a single member.
	isMemberErr func(member string) error
	// afterAddMember runs outside the lock after a successful insert.
	afterAddMember func(member string)
	// beforeAppend runs outside the lock before every append.
	beforeAppend func(ctx context.Context)
	// afterRead runs outside the lock after every ReadGroup.
	afterRead func(args ReadGroupArgs, n int)
}

type failure struct {
	err   error
	times int // <0 fails forever
}

type fakeGroup struct {
	delivered int
	pending   map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sets:     map[string]map[string]bool{},
		streams:  map[string][]RawEntry{},
		groups:   map[string]*fakeGroup{},
		calls:    map[string]int{},
		failures: map[string]*failure{},
		appended: make(chan struct{}, 1),
	}
}

func (f *fakeStore) failWith(method string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = &failure{err: err, times: times}
}

func (f *fakeStore) enter(method string) error {
	f.calls[method]++
	fl, ok := f.failures[method]
	if !ok || fl.times == 0 {
		return nil
	}
	if fl.times > 0 {
		fl.times--
	}
	return fl.err
}

func (f *fakeStore) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeStore) members(set string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sets[set]))
	for m := range f.sets[set] {
		out = append(out, m)
	}
	return out
}

func (f *fakeStore) entries(stream string) []RawEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RawEntry(nil), f.streams[stream]...)
}

func (f *fakeStore) pending(stream, group, consumer string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[stream+"/"+group]
	if !ok {
		return nil
	}
	return append([]string(nil), g.pending[consumer]...)
}

func (f *fakeStore) IsMember(_ context.Context, set, member string) (bool, error) {
	if f.beforeIsMember != nil {
		f.beforeIsMember()
	}
	if f.isMemberErr != nil {
		if err := f.isMemberErr(member); err != nil {
			return false, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("IsMember"); err != nil {
		return false, err
	}
	return f.sets[set][member], nil
}

func (f *fakeStore) AddMember(ctx context.Context, set, member string) error {
	if err := f.addMember(ctx, set, member); err != nil {
		return err
	}
	if f.afterAddMember != nil {
		f.afterAddMember(member)
	}
	return nil
}

func (f *fakeStore) addMember(ctx context.Context, set, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddMember"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.sets[set] == nil {
		f.sets[set] = map[string]bool{}
	}
	f.sets[set][member] = true
	return nil
}

func (f *fakeStore) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	if f.beforeAppend != nil {
		f.beforeAppend(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Append"); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.seq++
	id := fmt.Sprintf("%d-0", 1700000000000+f.seq)
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	f.streams[stream] = append(f.streams[stream], RawEntry{ID: id, Fields: copied})
	select {
	case f.appended <- struct{}{}:
	default:
	}
	return id, nil
}

func (f *fakeStore) CreateGroup(_ context.Context, stream, group, start string, mkStream bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateGroup"); err != nil {
		return err
	}
	if _, ok := f.streams[stream]; !ok {
		if !mkStream {
			return apperrors.NewStoreError("xgroup create", apperrors.CauseProtocol,
				errors.New("ERR The XGROUP subcommand requires the key to exist"))
		}
		f.streams[stream] = nil
	}
	key := stream + "/" + group
	if _, ok := f.groups[key]; ok {
		return apperrors.NewStoreError("xgroup create", apperrors.CauseBusyGroup,
			errors.New("BUSYGROUP Consumer Group name already exists"))
	}
	g := &fakeGroup{pending: map[string][]string{}}
	if start != StartOldest {
		g.delivered = len(f.streams[stream])
	}
	f.groups[key] = g
	return nil
}

func (f *fakeStore) ReadGroup(ctx context.Context, args ReadGroupArgs) ([]RawEntry, error) {
	out, err := f.readGroup(args)
	if err == nil && len(out) == 0 && args.Start == StartNew && args.Block > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-f.appended:
			out, err = f.readGroup(args)
		case <-time.After(args.Block):
		}
	}
	if f.afterRead != nil {
		f.afterRead(args, len(out))
	}
	return out, err
}

func (f *fakeStore) readGroup(args ReadGroupArgs) ([]RawEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadGroup"); err != nil {
		return nil, err
	}
	g, ok := f.groups[args.Stream+"/"+args.Group]
	if !ok {
		return nil, apperrors.NewStoreError("xreadgroup", apperrors.CauseProtocol,
			errors.New("NOGROUP No such key or consumer group"))
	}
	all := f.streams[args.Stream]
	var out []RawEntry
	if args.Start == StartNew {
		for g.delivered < len(all) && int64(len(out)) < args.Count {
			e := all[g.delivered]
			g.delivered++
			out = append(out, e)
			g.pending[args.Consumer] = append(g.pending[args.Consumer], e.ID)
		}
		return out, nil
	}
	after := idSeq(args.Start)
	for _, id := range g.pending[args.Consumer] {
		if idSeq(id) <= after || int64(len(out)) >= args.Count {
			continue
		}
		for _, e := range all {
			if e.ID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Ack(_ context.Context, stream, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Ack"); err != nil {
		return err
	}
	g, ok := f.groups[stream+"/"+group]
	if !ok {
		return nil
	}
	acked := map[string]bool{}
	for _, id := range ids {
		acked[id] = true
	}
	for consumer, ps := range g.pending {
		kept := ps[:0]
		for _, id := range ps {
			if !acked[id] {
				kept = append(kept, id)
			}
		}
		g.pending[consumer] = kept
	}
	return nil
}

func idSeq(id string) int {
	n, _ := strconv.Atoi(strings.SplitN(id, "-", 2)[0])
	return n
}

var errConnRefused = apperrors.NewStoreError("redis", apperrors.CauseConnection, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))

// logBuffer captures log output for assertions.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// count returns how many log lines contain substr.
func (b *logBuffer) count(substr string) int {
	n := 0
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
