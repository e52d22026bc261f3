// Package types holds the wire-level domain model shared by every component:
// message envelopes, the message-type and platform enums, and session keys.
package types

import "fmt"

// MsgType is the numeric, stable wire value carried on every Msg. Values are
// fixed by the external contract; never renumber an existing constant.
type MsgType int32

const (
	SingleMsg MsgType = iota + 1
	GroupMsg
	GroupInvitation
	GroupInviteNew
	GroupMemberExit
	GroupRemoveMember
	GroupDismiss
	GroupUpdate
	GroupDismissOrExitReceived
	GroupInvitationReceived
	FriendApplyReq
	FriendApplyResp
	FriendDelete
	FriendBlack
	FriendshipReceived
	SingleCallInvite
	SingleCallInviteNotAnswer
	SingleCallInviteCancel
	SingleCallOffer
	AgreeSingleCall
	ConnectSingleCall
	RejectSingleCall
	Candidate
	Hangup
	Read
	MsgRecResp
	Notification
	Service
)

func (t MsgType) String() string {
	if s, ok := msgTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MsgType(%d)", int32(t))
}

var msgTypeNames = map[MsgType]string{
	SingleMsg:                  "SingleMsg",
	GroupMsg:                   "GroupMsg",
	GroupInvitation:            "GroupInvitation",
	GroupInviteNew:             "GroupInviteNew",
	GroupMemberExit:            "GroupMemberExit",
	GroupRemoveMember:          "GroupRemoveMember",
	GroupDismiss:               "GroupDismiss",
	GroupUpdate:                "GroupUpdate",
	GroupDismissOrExitReceived: "GroupDismissOrExitReceived",
	GroupInvitationReceived:    "GroupInvitationReceived",
	FriendApplyReq:             "FriendApplyReq",
	FriendApplyResp:            "FriendApplyResp",
	FriendDelete:               "FriendDelete",
	FriendBlack:                "FriendBlack",
	FriendshipReceived:         "FriendshipReceived",
	SingleCallInvite:           "SingleCallInvite",
	SingleCallInviteNotAnswer:  "SingleCallInviteNotAnswer",
	SingleCallInviteCancel:     "SingleCallInviteCancel",
	SingleCallOffer:            "SingleCallOffer",
	AgreeSingleCall:            "AgreeSingleCall",
	ConnectSingleCall:          "ConnectSingleCall",
	RejectSingleCall:           "RejectSingleCall",
	Candidate:                  "Candidate",
	Hangup:                     "Hangup",
	Read:                       "Read",
	MsgRecResp:                 "MsgRecResp",
	Notification:               "Notification",
	Service:                    "Service",
}

// ReusesIncomingID reports whether ingest must preserve the incoming
// server_id instead of minting a fresh one (spec §3).
func (t MsgType) ReusesIncomingID() bool {
	switch t {
	case GroupDismissOrExitReceived, GroupInvitationReceived, FriendshipReceived:
		return true
	default:
		return false
	}
}

// ParseMsgType looks up a MsgType by its String() name, for config values
// like history.cleaner_except that name types rather than numbering them.
func ParseMsgType(name string) (MsgType, bool) {
	for t, n := range msgTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Kind is the dispatcher's classification of a message family (spec §4.7).
type Kind int

const (
	KindSingle Kind = iota
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "single"
}

// Classification is the per-type dispatch table row from spec §4.7.
type Classification struct {
	Kind           Kind
	AssignRecvSeq  bool
	PersistHistory bool
}

var classifications = map[MsgType]Classification{
	SingleMsg:              {KindSingle, true, true},
	SingleCallInvite:       {KindSingle, true, true},
	SingleCallInviteCancel: {KindSingle, true, true},
	Hangup:                 {KindSingle, true, true},
	ConnectSingleCall:      {KindSingle, true, true},
	RejectSingleCall:       {KindSingle, true, true},
	FriendApplyReq:         {KindSingle, true, true},
	FriendApplyResp:        {KindSingle, true, true},
	FriendDelete:           {KindSingle, true, true},

	GroupMsg: {KindGroup, true, true},

	GroupInvitation:   {KindGroup, true, false},
	GroupInviteNew:    {KindGroup, true, false},
	GroupMemberExit:   {KindGroup, true, false},
	GroupRemoveMember: {KindGroup, true, false},
	GroupDismiss:      {KindGroup, true, false},
	GroupUpdate:       {KindGroup, true, false},

	SingleCallOffer:           {KindSingle, false, false},
	AgreeSingleCall:           {KindSingle, false, false},
	Candidate:                 {KindSingle, false, false},
	SingleCallInviteNotAnswer: {KindSingle, false, false},

	GroupDismissOrExitReceived: {KindSingle, false, false},
	GroupInvitationReceived:    {KindSingle, false, false},
	FriendshipReceived:         {KindSingle, false, false},
	FriendBlack:                {KindSingle, false, false},
	Read:                       {KindSingle, false, false},
	MsgRecResp:                 {KindSingle, false, false},
	Notification:               {KindSingle, false, false},
	Service:                   {KindSingle, false, false},
}

// Classify returns the dispatch row for t. Unknown types default to a single,
// non-seq, non-persisted classification so an unrecognised future type never
// blocks offset commit (spec §4.7 step 1, "internal invariants" in §7).
func Classify(t MsgType) Classification {
	if c, ok := classifications[t]; ok {
		return c
	}
	return Classification{Kind: KindSingle, AssignRecvSeq: false, PersistHistory: false}
}

// Platform is the PlatformType enum carried in the WS URL and session key.
type Platform int32

const (
	PlatformUnknown Platform = iota
	PlatformDesktop
	PlatformMobile
	PlatformWeb
	PlatformPad
)

func (p Platform) String() string {
	switch p {
	case PlatformDesktop:
		return "desktop"
	case PlatformMobile:
		return "mobile"
	case PlatformWeb:
		return "web"
	case PlatformPad:
		return "pad"
	default:
		return "unknown"
	}
}

// Msg is the logical envelope described in spec §3. JSON tags match the
// wire payload published to the queue topic.
type Msg struct {
	ServerID   string   `json:"server_id"`
	LocalID    string   `json:"local_id"`
	SendID     string   `json:"send_id"`
	ReceiverID string   `json:"receiver_id,omitempty"`
	GroupID    string   `json:"group_id,omitempty"`
	Platform   Platform `json:"platform"`
	MsgType    MsgType  `json:"msg_type"`
	Content    []byte   `json:"content"`
	SendTime   int64    `json:"send_time"`
	Seq        int64    `json:"seq,omitempty"`
}

// MemberSeq pairs a group recipient with the sequence triple the dispatcher
// allocated for it; it travels with the message from seq-assignment through
// to the history-write and push stages (spec §4.7 step 5).
type MemberSeq struct {
	UserID string
	Cur    int64
	Max    int64
	Grew   bool
}

// SessionKey identifies a live client connection at a gateway (spec §3).
type SessionKey struct {
	UserID   string
	Platform Platform
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s", k.UserID, k.Platform)
}

// ReadReceiptPayload is the decoded content of a Msg whose MsgType is Read
// (spec §4.7 step 4).
type ReadReceiptPayload struct {
	UserID string  `json:"user_id"`
	Seq    []int64 `json:"seq"`
}

// Close codes for the WS gateway (spec §4.9, §6).
const (
	CloseNormal       = 1000
	CloseKicked       = 4001
	CloseUnauthorised = 4002
)
