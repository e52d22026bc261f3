// Package dispatcher implements the Queue Consumer / Dispatcher (C7): the
// hardest subsystem in the system, consuming the log, classifying each
// message, assigning recv-seq via C1, persisting via C3, and pushing via C8
// (spec §4.7).
package dispatcher

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/groupcache"
	"github.com/kelpline/msgcore/internal/history"
	"github.com/kelpline/msgcore/internal/seq"
	"github.com/kelpline/msgcore/internal/types"
)

// Pusher is the subset of internal/pusher.Pusher the dispatcher depends on.
type Pusher interface {
	PushSingle(ctx context.Context, msg *types.Msg)
	PushGroup(ctx context.Context, msg *types.Msg, members []types.MemberSeq)
}

// HistoryStore is the subset of internal/history.Store the dispatcher
// depends on.
type HistoryStore interface {
	SaveSingle(ctx context.Context, msg *types.Msg, inbox history.InboxRow) error
	SaveGroup(ctx context.Context, msg *types.Msg, rows []history.InboxRow) error
	MarkRead(ctx context.Context, userID string, seqs []int64) error
}

// Dispatcher wires the sequence stores, group-member cache, history store
// and pusher together behind queue.RecordHandler.
type Dispatcher struct {
	sendSeq *seq.Store
	recvSeq *seq.Store
	groups  *groupcache.Cache
	hist    HistoryStore
	push    Pusher
	log     *zap.Logger
}

func New(sendSeq, recvSeq *seq.Store, groups *groupcache.Cache, hist HistoryStore, push Pusher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sendSeq: sendSeq, recvSeq: recvSeq, groups: groups, hist: hist, push: push, log: log}
}

// HandleRecord implements pkg/queue.RecordHandler, i.e. one consumed
// record (spec §4.7).
func (d *Dispatcher) HandleRecord(ctx context.Context, value []byte) error {
	var msg types.Msg
	if err := json.Unmarshal(value, &msg); err != nil {
		// Poison-pill drop: logged, offset still committed by the caller.
		d.log.Warn("dispatcher: malformed record dropped", zap.Error(err))
		return errs.Wrap(err, errs.KindInternal, "dispatcher: unmarshal")
	}

	class := types.Classify(msg.MsgType)

	// Send-seq maintenance piggybacks durability onto the ingest path
	// (spec §4.7 step 3); Store.Increment persists the grown max itself.
	if msg.SendID != "" {
		d.sendSeq.Increment(ctx, msg.SendID)
	}

	if msg.MsgType == types.Read {
		return d.handleReadReceipt(ctx, &msg)
	}

	switch class.Kind {
	case types.KindGroup:
		return d.handleGroup(ctx, &msg, class)
	default:
		return d.handleSingle(ctx, &msg, class)
	}
}

func (d *Dispatcher) handleReadReceipt(ctx context.Context, msg *types.Msg) error {
	var payload types.ReadReceiptPayload
	if err := json.Unmarshal(msg.Content, &payload); err != nil {
		d.log.Warn("dispatcher: malformed read receipt dropped", zap.Error(err))
		return errs.Wrap(err, errs.KindInternal, "dispatcher: unmarshal read receipt")
	}
	if err := d.hist.MarkRead(ctx, payload.UserID, payload.Seq); err != nil {
		d.log.Warn("dispatcher: mark_read failed", zap.String("user_id", payload.UserID), zap.Error(err))
		return err
	}
	return nil
}

func (d *Dispatcher) handleSingle(ctx context.Context, msg *types.Msg, class types.Classification) error {
	if class.AssignRecvSeq && msg.ReceiverID != "" {
		res := d.recvSeq.Increment(ctx, msg.ReceiverID)
		msg.Seq = res.Cur
	}

	if class.PersistHistory {
		row := history.InboxRow{
			UserID:   msg.ReceiverID,
			ServerID: msg.ServerID,
			Seq:      msg.Seq,
			MsgType:  msg.MsgType,
		}
		if err := d.hist.SaveSingle(ctx, msg, row); err != nil {
			d.log.Warn("dispatcher: history write failed", zap.String("server_id", msg.ServerID), zap.Error(err))
		}
	}

	d.push.PushSingle(ctx, msg)
	return nil
}

func (d *Dispatcher) handleGroup(ctx context.Context, msg *types.Msg, class types.Classification) error {
	members, err := d.groups.List(msg.GroupID, msg.SendID)
	if err != nil {
		d.log.Warn("dispatcher: group member lookup failed", zap.String("group_id", msg.GroupID), zap.Error(err))
		return err
	}

	var memberSeqs []types.MemberSeq
	if class.AssignRecvSeq && len(members) > 0 {
		results := d.recvSeq.IncrementBatch(ctx, members)
		memberSeqs = make([]types.MemberSeq, len(results))
		for i, r := range results {
			memberSeqs[i] = types.MemberSeq{UserID: r.UserID, Cur: r.Cur, Max: r.Max, Grew: r.Grew}
		}
	}

	if class.PersistHistory && len(memberSeqs) > 0 {
		rows := make([]history.InboxRow, len(memberSeqs))
		for i, m := range memberSeqs {
			rows[i] = history.InboxRow{UserID: m.UserID, ServerID: msg.ServerID, Seq: m.Cur, MsgType: msg.MsgType}
		}
		if err := d.hist.SaveGroup(ctx, msg, rows); err != nil {
			d.log.Warn("dispatcher: group history write failed", zap.String("server_id", msg.ServerID), zap.Error(err))
		}
	}

	// Membership-cache upkeep runs after the history write (spec §4.7
	// step 7; this intentionally differs from the source's ordering per
	// Design Note §9(a)).
	d.applyMembershipUpkeep(msg)

	d.push.PushGroup(ctx, msg, memberSeqs)
	return nil
}

// groupRemoveMembersPayload is the content of a GroupRemoveMember message:
// a list of user ids to remove (spec §4.2).
type groupRemoveMembersPayload struct {
	UserIDs []string `json:"user_ids"`
}

// groupMemberExitPayload is the content of a GroupMemberExit message: the
// single user id that left.
type groupMemberExitPayload struct {
	UserID string `json:"user_id"`
}

func (d *Dispatcher) applyMembershipUpkeep(msg *types.Msg) {
	switch msg.MsgType {
	case types.GroupDismiss:
		d.groups.RemoveAll(msg.GroupID)
	case types.GroupMemberExit:
		var p groupMemberExitPayload
		if err := json.Unmarshal(msg.Content, &p); err != nil {
			d.log.Warn("dispatcher: malformed GroupMemberExit payload", zap.Error(err))
			return
		}
		d.groups.Remove(msg.GroupID, p.UserID)
	case types.GroupRemoveMember:
		var p groupRemoveMembersPayload
		if err := json.Unmarshal(msg.Content, &p); err != nil {
			d.log.Warn("dispatcher: malformed GroupRemoveMember payload", zap.Error(err))
			return
		}
		d.groups.RemoveMany(msg.GroupID, p.UserIDs)
	}
}
