package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelpline/msgcore/internal/groupcache"
	"github.com/kelpline/msgcore/internal/history"
	"github.com/kelpline/msgcore/internal/seq"
	"github.com/kelpline/msgcore/internal/types"
)

type nopPersister struct{}

func (nopPersister) PersistMax(ctx context.Context, scope seq.Scope, userID string, max int64) error {
	return nil
}

type fakeHistory struct {
	mu          sync.Mutex
	singles     []history.InboxRow
	groupRows   [][]history.InboxRow
	markedRead  map[string][]int64
	failSave    bool
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{markedRead: make(map[string][]int64)}
}

func (f *fakeHistory) SaveSingle(ctx context.Context, msg *types.Msg, row history.InboxRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, row)
	return nil
}

func (f *fakeHistory) SaveGroup(ctx context.Context, msg *types.Msg, rows []history.InboxRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupRows = append(f.groupRows, rows)
	return nil
}

func (f *fakeHistory) MarkRead(ctx context.Context, userID string, seqs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead[userID] = seqs
	return nil
}

type fakePusher struct {
	mu      sync.Mutex
	singles []*types.Msg
	groups  []*types.Msg
	members [][]types.MemberSeq
}

func (f *fakePusher) PushSingle(ctx context.Context, msg *types.Msg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, msg)
}

func (f *fakePusher) PushGroup(ctx context.Context, msg *types.Msg, members []types.MemberSeq) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, msg)
	f.members = append(f.members, members)
}

func newTestDispatcher(hist *fakeHistory, push *fakePusher, groups *groupcache.Cache) *Dispatcher {
	log := zap.NewNop()
	sendSeq := seq.NewStore(seq.Send, 1000, nopPersister{}, log)
	recvSeq := seq.NewStore(seq.Recv, 1000, nopPersister{}, log)
	return New(sendSeq, recvSeq, groups, hist, push, log)
}

func TestHandleRecordSingleAssignsSeqAndPersists(t *testing.T) {
	hist := newFakeHistory()
	push := &fakePusher{}
	d := newTestDispatcher(hist, push, groupcache.New(nil))

	msg := types.Msg{ServerID: "s1", SendID: "sender", ReceiverID: "recv1", MsgType: types.SingleMsg}
	value, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, d.HandleRecord(context.Background(), value))

	require.Len(t, hist.singles, 1)
	assert.Equal(t, "recv1", hist.singles[0].UserID)
	assert.Equal(t, int64(1), hist.singles[0].Seq)
	require.Len(t, push.singles, 1)
	assert.Equal(t, int64(1), push.singles[0].Seq)
}

func TestHandleRecordGroupFansOutToMembersExceptSender(t *testing.T) {
	hist := newFakeHistory()
	push := &fakePusher{}
	groups := groupcache.New(nil)
	groups.AddMany("g1", []string{"sender", "m1", "m2"})
	d := newTestDispatcher(hist, push, groups)

	msg := types.Msg{ServerID: "s2", SendID: "sender", GroupID: "g1", MsgType: types.GroupMsg}
	value, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, d.HandleRecord(context.Background(), value))

	require.Len(t, push.groups, 1)
	require.Len(t, push.members, 1)
	assert.Len(t, push.members[0], 2) // sender excluded from fan-out
	require.Len(t, hist.groupRows, 1)
	assert.Len(t, hist.groupRows[0], 2)
}

func TestHandleRecordGroupDismissClearsMembership(t *testing.T) {
	hist := newFakeHistory()
	push := &fakePusher{}
	groups := groupcache.New(nil)
	groups.AddMany("g1", []string{"a", "b"})
	d := newTestDispatcher(hist, push, groups)

	msg := types.Msg{GroupID: "g1", SendID: "a", MsgType: types.GroupDismiss}
	value, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, d.HandleRecord(context.Background(), value))

	remaining, err := groups.List("g1", "")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestHandleRecordReadReceiptMarksRead(t *testing.T) {
	hist := newFakeHistory()
	push := &fakePusher{}
	d := newTestDispatcher(hist, push, groupcache.New(nil))

	payload, err := json.Marshal(types.ReadReceiptPayload{UserID: "u1", Seq: []int64{1, 2, 3}})
	require.NoError(t, err)
	msg := types.Msg{MsgType: types.Read, Content: payload}
	value, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, d.HandleRecord(context.Background(), value))
	assert.Equal(t, []int64{1, 2, 3}, hist.markedRead["u1"])
}

func TestHandleRecordMalformedJSONReturnsError(t *testing.T) {
	d := newTestDispatcher(newFakeHistory(), &fakePusher{}, groupcache.New(nil))
	err := d.HandleRecord(context.Background(), []byte("not json"))
	assert.Error(t, err)
}
