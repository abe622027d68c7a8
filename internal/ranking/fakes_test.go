package ranking

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/onnwee/refmarket/internal/candidate"
	"github.com/onnwee/refmarket/internal/response"
)

// fakeSources implements every signal source with canned data and counts calls.
type fakeSources struct {
	outcomes  map[string]response.Outcome
	snapshots map[string]candidate.Snapshot
	pairs     map[string]struct{}
	direct    map[string]struct{}
	neighbors map[string]struct{}
	indirect  map[string]struct{}

	outcomeErr, snapshotErr, interestErr, directErr, neighborErr, indirectErr error

	outcomeCalls, snapshotCalls, interestCalls, directCalls, neighborCalls, indirectCalls atomic.Int32

	lastSince atomic.Value // time.Time
}

func (f *fakeSources) totalCalls() int32 {
	return f.outcomeCalls.Load() + f.snapshotCalls.Load() + f.interestCalls.Load() +
		f.directCalls.Load() + f.neighborCalls.Load() + f.indirectCalls.Load()
}

func (f *fakeSources) ReferrerOutcomes(_ context.Context, ids []string) (map[string]response.Outcome, error) {
	f.outcomeCalls.Add(1)
	if f.outcomeErr != nil {
		return nil, f.outcomeErr
	}
	out := map[string]response.Outcome{}
	for _, id := range ids {
		if o, ok := f.outcomes[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

func (f *fakeSources) Snapshots(_ context.Context, ids []string) (map[string]candidate.Snapshot, error) {
	f.snapshotCalls.Add(1)
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	out := map[string]candidate.Snapshot{}
	for _, id := range ids {
		if s, ok := f.snapshots[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeSources) AcceptedPairs(_ context.Context, _, _ []string, since time.Time) (map[string]struct{}, error) {
	f.interestCalls.Add(1)
	f.lastSince.Store(since)
	if f.interestErr != nil {
		return nil, f.interestErr
	}
	return copySet(f.pairs), nil
}

func (f *fakeSources) DirectMembers(_ context.Context, _ string, _ []string) (map[string]struct{}, error) {
	f.directCalls.Add(1)
	if f.directErr != nil {
		return nil, f.directErr
	}
	return copySet(f.direct), nil
}

func (f *fakeSources) Neighbors(_ context.Context, _ string) (map[string]struct{}, error) {
	f.neighborCalls.Add(1)
	if f.neighborErr != nil {
		return nil, f.neighborErr
	}
	return copySet(f.neighbors), nil
}

func (f *fakeSources) IndirectMembers(_ context.Context, _, _ []string) (map[string]struct{}, error) {
	f.indirectCalls.Add(1)
	if f.indirectErr != nil {
		return nil, f.indirectErr
	}
	return copySet(f.indirect), nil
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func set(ids ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
